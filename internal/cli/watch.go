package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/mgpai22/subauto/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch [directory]",
	Short: "Translate MKV files as they appear in a directory",
	Long: `Watch a directory and run the full workflow on every MKV file that is
added to it, one file at a time. A file is picked up once it has not
changed for the debounce period, so copies in progress are not read.

Files named *_translated.mkv are skipped. Stop with Ctrl-C; an interrupted
file can be continued with subauto resume.

Examples:
  subauto watch ~/Downloads/anime -t id
  subauto watch /media/incoming -t es --output-mode replace --existing`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	addTranslationFlags(watchCmd)
	addOutputFlags(watchCmd)
	watchCmd.Flags().Bool("existing", false, "Also process MKV files already in the directory")
	watchCmd.Flags().Duration("debounce", 0, "Quiet period before a file is processed (default from config)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	s, err := resolveSettings(cmd)
	if err != nil {
		return err
	}
	base := baseRequest(s)
	if err := applyOutputFlags(cmd, &base); err != nil {
		return err
	}

	runner, cleanup, err := newRunner(cmd.Context(), s, true)
	if err != nil {
		return err
	}
	defer cleanup()

	debounce, _ := cmd.Flags().GetDuration("debounce")
	if debounce <= 0 {
		debounce = time.Duration(cfg.Watch.DebounceSeconds) * time.Second
	}
	existing, _ := cmd.Flags().GetBool("existing")

	handler := func(ctx context.Context, path string) error {
		req := base
		req.Input = path
		return runPipeline(ctx, runner, req)
	}
	w, err := watcher.New(args[0], handler, watcher.Options{
		Debounce:     debounce,
		ScanExisting: existing,
	}, logger)
	if err != nil {
		return err
	}

	err = w.Run(cmd.Context())
	if cmd.Context().Err() != nil {
		return nil
	}
	return err
}
