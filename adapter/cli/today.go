package cli

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/taskbrain/internal/intelligence"
	"github.com/spf13/cobra"
)

var todayDate string

var todayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show the suggested schedule for a day",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newContainer(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		date := time.Now()
		if todayDate != "" {
			parsed, err := time.Parse("2006-01-02", todayDate)
			if err != nil {
				return fmt.Errorf("date must be formatted YYYY-MM-DD")
			}
			date = parsed
		}

		schedule, err := c.Engine.SuggestDailySchedule(cmd.Context(), date)
		if err != nil {
			return err
		}

		fmt.Printf("Schedule for %s\n", schedule.Date)
		printBlock("Morning", schedule.Morning)
		printBlock("Afternoon", schedule.Afternoon)
		printBlock("Evening", schedule.Evening)
		printBlock("Buffer", schedule.Buffer)
		fmt.Printf("Workload: %s (%d min estimated)\n",
			schedule.Workload.Level, schedule.Workload.TotalMinutes)
		for _, note := range schedule.EnergyNotes {
			fmt.Printf("Note: %s\n", note)
		}
		return nil
	},
}

func printBlock(name string, tasks []intelligence.ScoredTask) {
	if len(tasks) == 0 {
		return
	}
	fmt.Printf("%s:\n", name)
	for _, t := range tasks {
		fmt.Printf("  #%-4d %-50s score %.1f\n", t.ID, t.Content, t.IntelligenceScore)
	}
}

func init() {
	todayCmd.Flags().StringVar(&todayDate, "date", "", "day to plan (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(todayCmd)
}
