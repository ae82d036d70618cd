package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// maxDirectAdd matches the server's limit on POST /collections/{id}/companies.
const maxDirectAdd = 1000

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a source and target collection for development",
	Long: "Creates a source collection with --count companies and a target with --target-count, " +
		"the first --overlap of which also belong to the source.",
	RunE: func(cmd *cobra.Command, args []string) error {
		count := viper.GetInt("count")
		targetCount := viper.GetInt("target-count")
		overlap := viper.GetInt("overlap")
		if count <= 0 {
			return fmt.Errorf("--count must be > 0")
		}
		if targetCount < 0 || overlap < 0 || overlap > count || overlap > targetCount {
			return fmt.Errorf("--overlap must be between 0 and both --count and --target-count")
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		c := newClient()

		source, err := c.CreateCollection(ctx, viper.GetString("prefix")+"source")
		if err != nil {
			return err
		}
		target, err := c.CreateCollection(ctx, viper.GetString("prefix")+"target")
		if err != nil {
			return err
		}

		// Source ids are 1..count. Target shares 1..overlap and is padded
		// with ids above the source range.
		sourceIDs := make([]int64, 0, count)
		for i := 1; i <= count; i++ {
			sourceIDs = append(sourceIDs, int64(i))
		}
		targetIDs := make([]int64, 0, targetCount)
		for i := 1; i <= overlap; i++ {
			targetIDs = append(targetIDs, int64(i))
		}
		for i := 0; len(targetIDs) < targetCount; i++ {
			targetIDs = append(targetIDs, int64(count+1+i))
		}

		for _, fill := range []struct {
			id  string
			ids []int64
		}{{source.ID, sourceIDs}, {target.ID, targetIDs}} {
			for start := 0; start < len(fill.ids); start += maxDirectAdd {
				end := min(start+maxDirectAdd, len(fill.ids))
				if _, err := c.AddCompanies(ctx, fill.id, fill.ids[start:end]); err != nil {
					return fmt.Errorf("seed %s: %w", fill.id, err)
				}
			}
		}

		result := map[string]any{
			"source_collection_id": source.ID,
			"target_collection_id": target.ID,
			"source_total":         len(sourceIDs),
			"target_total":         len(targetIDs),
			"overlap":              overlap,
		}
		return printResult(result, func() {
			fmt.Printf("source %s (%d companies)\n", source.ID, len(sourceIDs))
			fmt.Printf("target %s (%d companies, %d shared)\n", target.ID, len(targetIDs), overlap)
			fmt.Printf("try: shuttle bulk-add %s %s --wait\n", source.ID, target.ID)
		})
	},
}

func init() {
	seedCmd.Flags().Int("count", 10000, "Companies in the source collection")
	seedCmd.Flags().Int("target-count", 50, "Companies in the target collection")
	seedCmd.Flags().Int("overlap", 20, "Companies present in both collections")
	seedCmd.Flags().String("prefix", "seed-", "Collection name prefix")

	addClientFlags(seedCmd)
	rootCmd.AddCommand(seedCmd)
}
