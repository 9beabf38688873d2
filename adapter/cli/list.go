package cli

import (
	"fmt"

	"github.com/felixgeelhaar/taskbrain/internal/tasks/domain"
	"github.com/spf13/cobra"
)

var (
	listStatus  string
	listProject string
	listDue     string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newContainer(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		tasks, err := c.Store.List(cmd.Context(), domain.TaskFilter{
			Status:    listStatus,
			Project:   listProject,
			DueBucket: listDue,
		})
		if err != nil {
			return err
		}

		if len(tasks) == 0 {
			fmt.Println("No tasks found.")
			return nil
		}
		for _, t := range tasks {
			line := fmt.Sprintf("#%-4d P%d E%d  %s", t.ID, t.Priority, t.EnergyLevel, t.Content)
			if t.DueDate != nil {
				line += fmt.Sprintf("  (due %s)", t.DueDate.Format("2006-01-02"))
			}
			if t.IsOverdue {
				line += "  OVERDUE"
			}
			fmt.Println(line)
		}
		fmt.Printf("%d task(s)\n", len(tasks))
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", domain.StatusActive, "status filter: active or completed")
	listCmd.Flags().StringVar(&listProject, "project", "", "project filter")
	listCmd.Flags().StringVar(&listDue, "due", "", "due filter: today, week or overdue")
	rootCmd.AddCommand(listCmd)
}
