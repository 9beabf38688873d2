package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var doneDuration int

var doneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Complete a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("id must be a positive integer")
		}

		c, err := newContainer(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		var actual *int
		if doneDuration > 0 {
			actual = &doneDuration
		}

		task, err := c.Store.Complete(cmd.Context(), id, actual)
		if err != nil {
			return err
		}
		fmt.Printf("Task #%d completed: %s\n", task.ID, task.Content)
		return nil
	},
}

func init() {
	doneCmd.Flags().IntVar(&doneDuration, "duration", 0, "actual duration in minutes")
	rootCmd.AddCommand(doneCmd)
}
