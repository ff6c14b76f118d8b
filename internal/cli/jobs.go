package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mgpai22/subauto/internal/job"
	"github.com/mgpai22/subauto/internal/language"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage stored translation jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List unfinished jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listJobs()
	},
}

var jobsDiscardCmd = &cobra.Command{
	Use:   "discard [job_id...]",
	Short: "Delete stored job state",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runJobsDiscard,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsDiscardCmd)
}

func listJobs() error {
	store, err := openJobStore()
	if err != nil {
		return err
	}
	jobs, err := store.List()
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("No unfinished jobs.")
		return nil
	}
	fmt.Println(renderTable(
		[]string{"ID", "File", "Languages", "Progress", "Status", "Resumable", "Updated"},
		jobRows(jobs),
		3,
	))
	return nil
}

func jobRows(jobs []*job.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		resumable := "no"
		if job.Resumable(j, j.SourcePath) {
			resumable = "yes"
		}
		status := string(j.Status)
		if j.LastError != "" {
			status += ": " + truncate(j.LastError, 40)
		}
		rows = append(rows, []string{
			j.ID,
			filepath.Base(j.SourcePath),
			language.ToISO3(j.SourceLanguage) + " -> " + language.ToISO3(j.TargetLanguage),
			fmt.Sprintf("%d/%d (%.0f%%)", j.Progress, len(j.Entries), j.Percent()),
			status,
			resumable,
			j.UpdatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return rows
}

func runJobsDiscard(cmd *cobra.Command, args []string) error {
	store, err := openJobStore()
	if err != nil {
		return err
	}
	for _, id := range args {
		if _, err := store.Load(id); err != nil {
			return err
		}
		if err := store.Delete(id); err != nil {
			return fmt.Errorf("discard %s: %w", id, err)
		}
		fmt.Printf("Discarded %s\n", id)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
