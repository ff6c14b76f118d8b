package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mgpai22/subauto/internal/job"
	"github.com/mgpai22/subauto/internal/pipeline"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [job_id]",
	Short: "Resume an interrupted translation",
	Long: `Resume a stored job from its last saved batch. Without a job id the
resumable jobs are listed.

Provider and model flags override the ones the job was started with, so
a job that failed on one provider can be finished with another.

Examples:
  subauto resume
  subauto resume 3f9c2a1b7d4e8f60
  subauto resume 3f9c2a1b7d4e8f60 --provider openrouter --model google/gemini-2.5-flash`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)

	resumeCmd.Flags().String("provider", "", "Provider (default: the job's)")
	resumeCmd.Flags().String("model", "", "Model (default: the job's)")
	resumeCmd.Flags().String("fallback-model", "", "Model retried once when a batch is refused")
	resumeCmd.Flags().Int("concurrency", 0, "Batches in flight at once")
	addOutputFlags(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listJobs()
	}

	store, err := openJobStore()
	if err != nil {
		return err
	}
	stored, err := store.Load(args[0])
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if !flags.Changed("provider") {
		_ = flags.Set("provider", stored.Provider)
	}
	if !flags.Changed("model") {
		_ = flags.Set("model", stored.Model)
	}
	s, err := resolveResumeSettings(cmd, stored)
	if err != nil {
		return err
	}

	req := baseRequest(s)
	if err := applyOutputFlags(cmd, &req); err != nil {
		return err
	}
	if stored.BatchSize > 0 {
		req.Job.BatchSize = stored.BatchSize
	}

	runner, cleanup, err := newRunner(cmd.Context(), s, stored.TrackID != pipeline.TrackAuto)
	if err != nil {
		return err
	}
	defer cleanup()

	progress := newProgress(filepath.Base(stored.SourcePath))
	req.Job.OnProgress = progress.update
	fmt.Printf("Resuming %s at %d/%d entries\n",
		filepath.Base(stored.SourcePath), stored.Progress, len(stored.Entries))

	res, err := runner.Resume(cmd.Context(), stored.ID, req)
	progress.finish()
	if err != nil {
		return err
	}
	printResult(res)
	return nil
}

// resolveResumeSettings resolves settings with the job's languages and
// preset in place of the configured ones.
func resolveResumeSettings(cmd *cobra.Command, stored *job.Job) (settings, error) {
	saved := *cfg
	defer func() { *cfg = saved }()

	cfg.Translation.SourceLanguage = stored.SourceLanguage
	cfg.Translation.TargetLanguage = stored.TargetLanguage
	if stored.Preset != "" {
		cfg.LLM.Preset = stored.Preset
	}
	return resolveSettings(cmd)
}
