package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mgpai22/subauto/internal/config"
	"github.com/mgpai22/subauto/internal/logging"
	"github.com/mgpai22/subauto/internal/mkv"
	"github.com/mgpai22/subauto/internal/prompts"
	"github.com/mgpai22/subauto/internal/translate"
)

var (
	verbose    bool
	configPath string
	logger     *logging.Logger
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "subauto",
	Short: "Translate MKV subtitle tracks with LLMs",
	Long: `Subauto extracts a subtitle track from an MKV file, translates it in
batches with an LLM provider and muxes the translated track back in.

Progress is saved after every batch, so interrupted translations resume
where they stopped.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logging.NewLogger(verbose)

		loaded, resolved, exists, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		configPath = resolved
		logger.Debugw("configuration loaded", "path", resolved, "exists", exists)
		return nil
	},
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the running command, which
// leaves any job resumable.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := hintFor(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
	}
	return err
}

// hintFor points the user at the setting behind a known failure.
func hintFor(err error) string {
	switch {
	case errors.Is(err, mkv.ErrToolNotFound):
		return fmt.Sprintf(
			"install MKVToolNix or set mkvtoolnix_path in config (%s) or %s",
			configPath, mkv.EnvToolPath,
		)
	case errors.Is(err, translate.ErrAuthentication), errors.Is(err, translate.ErrUnavailable):
		return fmt.Sprintf("check api key / provider settings in %s", configPath)
	case errors.Is(err, translate.ErrPolicyViolation):
		return "set llm.fallback_model to retry refused batches with another model"
	case errors.Is(err, prompts.ErrNotFound):
		return "run `subauto prompts list` to see the available prompts"
	case errors.Is(err, context.Canceled):
		return "progress was saved; run `subauto resume` to continue"
	default:
		return ""
	}
}

func init() {
	rootCmd.PersistentFlags().
		BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		StringVar(&configPath, "config", "", "Config file (default ~/.config/subauto/config.toml)")
}
