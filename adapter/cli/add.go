package cli

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/taskbrain/internal/tasks/domain"
	"github.com/spf13/cobra"
)

var (
	addPriority int
	addEnergy   int
	addDue      string
	addDuration int
	addProject  string
	addLabels   []string
)

var addCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Add a task",
	Long: `Adds a task to the local backlog.

The due date accepts ISO dates as well as natural language:

  taskbrain add "Buy groceries" --due tomorrow
  taskbrain add "Finish report" --due 2025-03-21 --priority 4
  taskbrain add "Deep work block" --energy 5 --duration 120`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newContainer(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		in := domain.CreateTaskInput{
			Content:   strings.Join(args, " "),
			DueDate:   addDue,
			ProjectID: addProject,
			Labels:    addLabels,
		}
		if addPriority > 0 {
			in.Priority = &addPriority
		}
		if addEnergy > 0 {
			in.EnergyLevel = &addEnergy
		}
		if addDuration > 0 {
			in.EstimatedDuration = &addDuration
		}

		task, err := c.Store.Create(cmd.Context(), in)
		if err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}

		fmt.Printf("Task #%d created: %s\n", task.ID, task.Content)
		fmt.Printf("  Priority: %d  Energy: %d\n", task.Priority, task.EnergyLevel)
		if task.DueDate != nil {
			fmt.Printf("  Due: %s\n", task.DueDate.Format("Mon, Jan 2 2006 15:04"))
		} else if addDue != "" {
			fmt.Printf("  Due date %q could not be parsed, stored without one\n", addDue)
		}
		return nil
	},
}

func init() {
	addCmd.Flags().IntVarP(&addPriority, "priority", "p", 0, "priority 1-5")
	addCmd.Flags().IntVarP(&addEnergy, "energy", "e", 0, "energy level 1-5")
	addCmd.Flags().StringVarP(&addDue, "due", "d", "", "due date (ISO or natural language)")
	addCmd.Flags().IntVar(&addDuration, "duration", 0, "estimated duration in minutes")
	addCmd.Flags().StringVar(&addProject, "project", "", "project id")
	addCmd.Flags().StringSliceVar(&addLabels, "label", nil, "label (repeatable)")
	rootCmd.AddCommand(addCmd)
}
