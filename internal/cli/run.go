package cli

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mgpai22/subauto/internal/language"
	"github.com/mgpai22/subauto/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run [mkv_file]",
	Short: "Extract, translate and re-mux a subtitle track",
	Long: `Run the full workflow on an MKV file: extract a subtitle track,
translate it in batches and mux the translation back in as a new track.

By default the result is written to <name>_translated.mkv. With
--output-mode replace the source is replaced and the original is kept
as <name>.mkv.bak.

Examples:
  subauto run episode01.mkv -t id
  subauto run movie.mkv -t es --track 3 --output-mode replace
  subauto run episode01.mkv -t id --no-mux`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	addTranslationFlags(runCmd)
	addOutputFlags(runCmd)
	runCmd.Flags().IntP("track", "n", pipeline.TrackAuto, "Subtitle track id (default: first text track)")
	runCmd.Flags().StringP("output", "o", "", "Output path")
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("output-mode", "", "new_file or replace (default from config)")
	cmd.Flags().Bool("strip-existing", false, "Drop the existing subtitle tracks")
	cmd.Flags().String("track-name", "", "Name of the new track (default: language name)")
	cmd.Flags().Bool("no-mux", false, "Only write the translated subtitle file")
	cmd.Flags().Bool("keep-subtitle", false, "Keep extracted subtitles in the work directory")
}

func applyOutputFlags(cmd *cobra.Command, req *pipeline.Request) error {
	flags := cmd.Flags()
	if v, _ := flags.GetString("output-mode"); v != "" {
		mode, err := pipeline.ParseOutputMode(v)
		if err != nil {
			return err
		}
		req.OutputMode = mode
	}
	if flags.Changed("strip-existing") {
		req.StripExisting, _ = flags.GetBool("strip-existing")
	}
	if v, _ := flags.GetString("track-name"); v != "" {
		req.TrackName = v
	}
	req.NoMux, _ = flags.GetBool("no-mux")
	if flags.Changed("keep-subtitle") {
		req.KeepSubtitle, _ = flags.GetBool("keep-subtitle")
	}
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := resolveSettings(cmd)
	if err != nil {
		return err
	}
	req := baseRequest(s)
	req.Input = args[0]
	req.TrackID, _ = cmd.Flags().GetInt("track")
	req.Output, _ = cmd.Flags().GetString("output")
	if err := applyOutputFlags(cmd, &req); err != nil {
		return err
	}

	runner, cleanup, err := newRunner(cmd.Context(), s, true)
	if err != nil {
		return err
	}
	defer cleanup()

	return runPipeline(cmd.Context(), runner, req)
}

func runPipeline(ctx context.Context, runner *pipeline.Runner, req pipeline.Request) error {
	progress := newProgress(filepath.Base(req.Input))
	req.Job.OnProgress = progress.update

	logger.Infow("Starting translation",
		"input", req.Input,
		"target_language", language.DisplayName(req.TargetLanguage),
		"provider", req.Provider,
		"model", req.Model,
	)
	res, err := runner.Run(ctx, req)
	progress.finish()
	if err != nil {
		return err
	}
	printResult(res)
	return nil
}
