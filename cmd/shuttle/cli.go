package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/user/shuttle/pkg/client"
)

func addClientFlags(cmds ...*cobra.Command) {
	for _, cmd := range cmds {
		cmd.Flags().String("server", "http://localhost:8080", "Shuttle server URL")
		cmd.Flags().Bool("output-json", false, "Output as JSON")
		cmd.SilenceUsage = true
	}
}

func newClient() *client.Client {
	return client.New(strings.TrimRight(viper.GetString("server"), "/"))
}

// commandContext is cancelled on SIGINT/SIGTERM so long waits stop cleanly.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// printResult writes v as indented JSON when --output-json is set and
// otherwise calls human.
func printResult(v any, human func()) error {
	if !viper.GetBool("output-json") {
		human()
		return nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}

func printStatus(st *client.Status) {
	line := fmt.Sprintf("%s  %-9s %-11s %d/%d (%.1f%%) affected=%d",
		st.TaskID, st.Kind, st.Status, st.Current, st.Total, st.Percent, st.Affected)
	if st.ETASeconds != nil && !st.Terminal() {
		line += fmt.Sprintf(" eta=%.0fs", *st.ETASeconds)
	}
	if st.Message != "" {
		line += "  " + st.Message
	}
	fmt.Fprintln(os.Stdout, line)
}

// parseIDs accepts ids as separate args or comma-separated lists.
func parseIDs(values []string) ([]int64, error) {
	var ids []int64
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid company id %q", part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
