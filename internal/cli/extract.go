package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mgpai22/subauto/internal/mkv"
	"github.com/mgpai22/subauto/internal/pipeline"
)

var extractCmd = &cobra.Command{
	Use:   "extract [mkv_file]",
	Short: "Extract a subtitle track from an MKV file",
	Long: `Extract one subtitle track to a file. Uses mkvextract, or ffmpeg when
MKVToolNix is not installed.

Without --track the first text track is taken, preferring --language.

Examples:
  subauto extract episode01.mkv
  subauto extract episode01.mkv --track 3 -o episode01.ass`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().IntP("track", "n", pipeline.TrackAuto, "Track id (see `subauto tracks`)")
	extractCmd.Flags().StringP("output", "o", "", "Output path (default <name>_track<id>.<ext>)")
	extractCmd.Flags().StringP("language", "l", "", "Preferred track language")
}

func runExtract(cmd *cobra.Command, args []string) error {
	mkvPath := args[0]
	trackID, _ := cmd.Flags().GetInt("track")
	outputPath, _ := cmd.Flags().GetString("output")
	lang, _ := cmd.Flags().GetString("language")

	tools, err := pipeline.DiscoverTools(cfg.Paths.MKVToolNix, logger)
	if err != nil {
		return err
	}

	if trackID == pipeline.TrackAuto {
		tracks, err := tools.Source.Tracks(cmd.Context(), mkvPath)
		if err != nil {
			return err
		}
		track, err := mkv.PickTrack(tracks, lang)
		if err != nil {
			return err
		}
		trackID = track.ID
		logger.Infow("Picked subtitle track", "track", track.DisplayName())
	}

	out, err := tools.Source.Extract(cmd.Context(), mkvPath, trackID, outputPath)
	if err != nil {
		return err
	}

	absOutput, _ := filepath.Abs(out)
	fmt.Printf("Subtitle track %d extracted: %s\n", trackID, absOutput)
	return nil
}
