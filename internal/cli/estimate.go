package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mgpai22/subauto/internal/estimate"
	"github.com/mgpai22/subauto/internal/language"
	"github.com/mgpai22/subauto/internal/pipeline"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate [subtitle_or_mkv]",
	Short: "Estimate tokens and cost before translating",
	Long: `Build the prompts a translation would send and count their tokens
without calling the provider. For a partially translated job only the
remaining batches are counted.

Cost is shown when prices for the model are set in the config:

  [prices."gemini-2.5-flash"]
  input_per_million = 0.30
  output_per_million = 2.50`,
	Args: cobra.ExactArgs(1),
	RunE: runEstimate,
}

func init() {
	rootCmd.AddCommand(estimateCmd)

	addTranslationFlags(estimateCmd)
	estimateCmd.Flags().IntP("track", "n", pipeline.TrackAuto, "Subtitle track id for MKV input")
}

func runEstimate(cmd *cobra.Command, args []string) error {
	input := args[0]
	if _, err := os.Stat(input); err != nil {
		return fmt.Errorf("input not found: %s", input)
	}

	s, err := resolveSettings(cmd)
	if err != nil {
		return err
	}
	req := baseRequest(s)
	req.Input = input
	req.TrackID, _ = cmd.Flags().GetInt("track")

	store, err := openJobStore()
	if err != nil {
		return err
	}
	deps := pipeline.Deps{Store: store, Logger: logger}

	isMKV := strings.EqualFold(filepath.Ext(input), ".mkv")
	if isMKV {
		if deps.Tools, err = pipeline.DiscoverTools(cfg.Paths.MKVToolNix, logger); err != nil {
			return err
		}
	}
	runner := pipeline.New(deps)

	var prepared *pipeline.Prepared
	if isMKV {
		prepared, err = runner.Prepare(cmd.Context(), req)
	} else {
		prepared, err = runner.PrepareSubtitle(req)
	}
	if err != nil {
		return err
	}
	if isMKV && !prepared.Resumed {
		// nothing refers to the extraction yet
		defer os.RemoveAll(filepath.Dir(prepared.Job.SubtitlePath))
	}

	opts := cfg.EstimateOptions(s.provider, s.model)
	opts.Translate = s.opts
	opts.BatchSize = s.jobOpts.BatchSize
	opts.ContextLines = s.jobOpts.ContextLines
	opts.Prices = s.prices
	est := estimate.ForJob(prepared.Job, opts)

	j := prepared.Job
	fmt.Printf("File: %s\n", filepath.Base(input))
	if isMKV {
		fmt.Printf("Track: %s\n", prepared.Track.DisplayName())
	}
	fmt.Printf("Languages: %s -> %s\n",
		language.DisplayName(j.SourceLanguage), language.DisplayName(j.TargetLanguage))
	fmt.Printf("Provider: %s (%s)\n", s.provider, s.model)
	if j.Progress > 0 {
		fmt.Printf("Already translated: %d/%d entries\n", j.Progress, len(j.Entries))
	}
	fmt.Println(renderTable(
		[]string{"Entries", "Sent", "Batches", "Prompt", "Completion", "Total", "Cost"},
		[][]string{estimateRow(est)},
		0, 1, 2, 3, 4, 5, 6,
	))
	if !est.HasCost {
		fmt.Printf("No prices configured for %s; add [prices.%q] to %s to see cost.\n",
			s.model, s.model, configPath)
	}
	return nil
}

func estimateRow(est estimate.Estimate) []string {
	cost := "-"
	if est.HasCost {
		cost = formatCost(&est.Cost)
	}
	return []string{
		formatCount(est.Entries),
		formatCount(est.Sent),
		formatCount(est.Batches),
		formatCount(est.PromptTokens),
		formatCount(est.CompletionTokens),
		formatCount(est.TotalTokens()),
		cost,
	}
}
