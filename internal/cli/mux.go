package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mgpai22/subauto/internal/mkv"
	"github.com/mgpai22/subauto/internal/pipeline"
)

var muxCmd = &cobra.Command{
	Use:   "mux [mkv_file] [subtitle_file]",
	Short: "Add a subtitle file to an MKV as a new track",
	Long: `Mux a subtitle file into a copy of an MKV with mkvmerge.

Examples:
  subauto mux episode01.mkv episode01.ind.ass --language id
  subauto mux movie.mkv movie.es.srt --language es --track-name "Spanish (AI)" --strip-existing`,
	Args: cobra.ExactArgs(2),
	RunE: runMux,
}

func init() {
	rootCmd.AddCommand(muxCmd)

	muxCmd.Flags().StringP("language", "l", "", "Language of the subtitle (required)")
	muxCmd.Flags().String("track-name", "", "Track name (default: language name)")
	muxCmd.Flags().StringP("output", "o", "", "Output path (default <name>_translated.mkv)")
	muxCmd.Flags().Bool("default", true, "Mark the new track as default")
	muxCmd.Flags().Bool("strip-existing", false, "Drop the existing subtitle tracks")

	_ = muxCmd.MarkFlagRequired("language")
}

func runMux(cmd *cobra.Command, args []string) error {
	lang, _ := cmd.Flags().GetString("language")
	trackName, _ := cmd.Flags().GetString("track-name")
	outputPath, _ := cmd.Flags().GetString("output")
	isDefault, _ := cmd.Flags().GetBool("default")
	strip, _ := cmd.Flags().GetBool("strip-existing")

	toolkit, err := mkv.New(cfg.Paths.MKVToolNix, logger)
	if err != nil {
		return err
	}
	if outputPath == "" {
		outputPath = pipeline.TranslatedOutputPath(args[0])
	}

	err = toolkit.Merge(cmd.Context(), mkv.MergeRequest{
		Source:        args[0],
		Subtitle:      args[1],
		Output:        outputPath,
		Language:      lang,
		TrackName:     trackName,
		Default:       isDefault,
		StripExisting: strip,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Muxed: %s\n", outputPath)
	return nil
}
