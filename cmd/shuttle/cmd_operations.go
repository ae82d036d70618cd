package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/user/shuttle/pkg/client"
)

var bulkAddCmd = &cobra.Command{
	Use:   "bulk-add <source-collection-id> <target-collection-id> [company-ids...]",
	Short: "Add companies from one collection to another",
	Long:  "Without company ids every member of the source is added (--mode all). With ids only those are added.",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args[2:])
		if err != nil {
			return err
		}
		mode := viper.GetString("mode")
		if mode == "" {
			mode = client.ModeAll
			if len(ids) > 0 {
				mode = client.ModeSelected
			}
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		c := newClient()
		task, err := c.BulkAdd(ctx, args[0], args[1], mode, ids)
		if err != nil {
			return err
		}
		if !viper.GetBool("wait") {
			return printResult(task, func() {
				fmt.Printf("task %s admitted: %d companies on the %s lane\n", task.TaskID, task.Total, task.Lane)
			})
		}
		return waitAndPrint(cmd, c, task.TaskID)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show the progress of an operation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		st, err := newClient().Status(ctx, args[0])
		if err != nil {
			return err
		}
		return printResult(st, func() { printStatus(st) })
	},
}

var waitCmd = &cobra.Command{
	Use:   "wait <task-id>",
	Short: "Follow an operation until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return waitAndPrint(cmd, newClient(), args[0])
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Request cancellation of an operation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		status, err := newClient().Cancel(ctx, args[0])
		if err != nil {
			return err
		}
		return printResult(map[string]string{"task_id": args[0], "status": status}, func() {
			fmt.Printf("%s: %s\n", args[0], status)
		})
	},
}

var undoCmd = &cobra.Command{
	Use:   "undo <task-id>",
	Short: "Remove the companies a finished bulk add inserted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		c := newClient()
		task, err := c.Undo(ctx, args[0], viper.GetString("target"))
		if err != nil {
			return err
		}
		if !viper.GetBool("wait") {
			return printResult(task, func() {
				fmt.Printf("undo task %s admitted: %d companies\n", task.TaskID, task.Total)
			})
		}
		return waitAndPrint(cmd, c, task.TaskID)
	},
}

var operationsCmd = &cobra.Command{
	Use:   "operations",
	Short: "List recent operations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		ops, err := newClient().ListOperations(ctx, viper.GetInt("limit"))
		if err != nil {
			return err
		}
		return printResult(ops, func() {
			for i := range ops {
				printStatus(&ops[i])
			}
		})
	},
}

func waitAndPrint(cmd *cobra.Command, c *client.Client, taskID string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	var last string
	st, err := c.Wait(ctx, taskID, viper.GetDuration("interval"), func(st *client.Status) {
		if viper.GetBool("output-json") {
			return
		}
		line := fmt.Sprintf("%s/%d/%d", st.Status, st.Current, st.Affected)
		if line != last {
			last = line
			printStatus(st)
		}
	})
	if err != nil {
		return err
	}
	if viper.GetBool("output-json") {
		return printResult(st, nil)
	}
	if st.State != "completed" {
		fmt.Fprintf(os.Stderr, "operation %s ended %s\n", st.TaskID, st.State)
		os.Exit(1)
	}
	return nil
}

func init() {
	bulkAddCmd.Flags().String("mode", "", "Scope: all or selected (default: selected when ids are given)")
	for _, cmd := range []*cobra.Command{bulkAddCmd, undoCmd} {
		cmd.Flags().Bool("wait", false, "Follow the operation until it finishes")
	}
	for _, cmd := range []*cobra.Command{bulkAddCmd, undoCmd, waitCmd} {
		cmd.Flags().Duration("interval", 500*time.Millisecond, "Poll interval while waiting")
	}
	undoCmd.Flags().String("target", "", "Collection to remove from (defaults to the operation's target)")
	operationsCmd.Flags().Int("limit", 20, "Maximum operations to list")

	addClientFlags(bulkAddCmd, statusCmd, waitCmd, cancelCmd, undoCmd, operationsCmd)
	rootCmd.AddCommand(bulkAddCmd, statusCmd, waitCmd, cancelCmd, undoCmd, operationsCmd)
}
