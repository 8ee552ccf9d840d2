package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/capybara-rs/scheduler/internal/taskfile"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse the task document and report definition errors",
	RunE: func(_ *cobra.Command, _ []string) error {
		path := viper.GetString("task_file")
		res, err := taskfile.Load(path)
		if err != nil {
			return err
		}

		for _, task := range res.Tasks {
			schedule := task.Schedule
			if schedule == "" {
				schedule = "(manual)"
			}
			fmt.Printf("ok    %-24s %-6s %s  %s\n", task.Name, task.Method, schedule, task.URL)
		}
		for _, defErr := range res.Errors {
			fmt.Printf("error %s\n", defErr.Error())
		}

		fmt.Printf("\n%d valid, %d rejected\n", len(res.Tasks), len(res.Errors))
		if len(res.Errors) > 0 {
			return fmt.Errorf("%s contains invalid task definitions", path)
		}
		return nil
	},
}
