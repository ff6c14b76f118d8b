package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mgpai22/subauto/internal/language"
	"github.com/mgpai22/subauto/internal/pipeline"
)

var translateCmd = &cobra.Command{
	Use:   "translate [subtitle_file]",
	Short: "Translate a subtitle file",
	Long: `Translate a standalone SRT, VTT or ASS/SSA file. For ASS files styling
and override tags are preserved and sign or song lines are left as they are.

Progress is saved after every batch. Running the same command again after
a failure or Ctrl-C continues from the last saved batch.

Examples:
  subauto translate episode01.ass -t id
  subauto translate movie.srt -t spanish --provider openai --model gpt-4o-mini
  subauto translate movie.vtt -s en -t ja -o movie.ja.vtt`,
	Args: cobra.ExactArgs(1),
	RunE: runTranslate,
}

func init() {
	rootCmd.AddCommand(translateCmd)

	addTranslationFlags(translateCmd)
	translateCmd.Flags().StringP("output", "o", "", "Output path (default <name>.<lang>.<ext>)")
}

// newRunner builds a pipeline runner. Tools are only discovered for MKV
// input.
func newRunner(ctx context.Context, s settings, withTools bool) (*pipeline.Runner, func(), error) {
	translator, err := newTranslator(ctx, s)
	if err != nil {
		return nil, nil, err
	}
	store, err := openJobStore()
	if err != nil {
		return nil, nil, err
	}
	deps := pipeline.Deps{
		Translator: translator,
		Store:      store,
		Logger:     logger,
	}
	if withTools {
		if deps.Tools, err = pipeline.DiscoverTools(cfg.Paths.MKVToolNix, logger); err != nil {
			return nil, nil, err
		}
	}
	hist := openHistory()
	deps.History = hist
	cleanup := func() {
		if hist != nil {
			_ = hist.Close()
		}
	}
	return pipeline.New(deps), cleanup, nil
}

func runTranslate(cmd *cobra.Command, args []string) error {
	subtitlePath := args[0]
	outputPath, _ := cmd.Flags().GetString("output")

	if _, err := os.Stat(subtitlePath); os.IsNotExist(err) {
		return fmt.Errorf("subtitle file not found: %s", subtitlePath)
	}
	ext := strings.ToLower(filepath.Ext(subtitlePath))
	if ext != ".srt" && ext != ".vtt" && ext != ".ass" && ext != ".ssa" {
		return fmt.Errorf(
			"unsupported subtitle format %q: use .srt, .vtt, .ass, or .ssa",
			ext,
		)
	}

	s, err := resolveSettings(cmd)
	if err != nil {
		return err
	}
	runner, cleanup, err := newRunner(cmd.Context(), s, false)
	if err != nil {
		return err
	}
	defer cleanup()

	req := baseRequest(s)
	req.Input = subtitlePath
	req.Output = outputPath

	progress := newProgress(filepath.Base(subtitlePath))
	req.Job.OnProgress = progress.update

	logger.Infow("Starting subtitle translation",
		"input", subtitlePath,
		"target_language", language.DisplayName(s.targetLanguage),
		"provider", s.provider,
		"model", s.model,
	)
	res, err := runner.TranslateSubtitle(cmd.Context(), req)
	progress.finish()
	if err != nil {
		return err
	}

	printResult(res)
	return nil
}

func printResult(res *pipeline.Result) {
	absOutput, _ := filepath.Abs(res.Output)
	fmt.Printf("Done: %s\n", absOutput)
	if res.Job != nil {
		fmt.Printf("  Entries: %d\n", len(res.Job.Entries))
		fmt.Printf("  Languages: %s -> %s\n",
			language.DisplayName(res.Job.SourceLanguage),
			language.DisplayName(res.Job.TargetLanguage),
		)
		usage := res.Job.Usage
		estimated := ""
		if usage.Estimated {
			estimated = " (estimated)"
		}
		fmt.Printf("  Tokens: %s prompt, %s completion%s\n",
			formatCount(usage.PromptTokens), formatCount(usage.CompletionTokens), estimated)
	}
	if res.Cost != nil {
		fmt.Printf("  Cost: %s\n", formatCost(res.Cost))
	}
	if res.Backup != "" {
		fmt.Printf("  Original kept at: %s\n", res.Backup)
	}
	if res.Resumed {
		fmt.Println("  Resumed from saved progress")
	}
	fmt.Printf("  Time: %s\n", res.Duration.Round(100*time.Millisecond))
}
