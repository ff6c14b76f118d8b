package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mgpai22/subauto/internal/language"
	"github.com/mgpai22/subauto/internal/mkv"
	"github.com/mgpai22/subauto/internal/pipeline"
)

var tracksCmd = &cobra.Command{
	Use:   "tracks [mkv_file]",
	Short: "List the subtitle tracks of an MKV file",
	Long: `List the subtitle tracks of an MKV file with their ids, codecs and
languages. Image based tracks (PGS, VobSub) cannot be translated.

Examples:
  subauto tracks episode01.mkv`,
	Args: cobra.ExactArgs(1),
	RunE: runTracks,
}

func init() {
	rootCmd.AddCommand(tracksCmd)
}

func runTracks(cmd *cobra.Command, args []string) error {
	tools, err := pipeline.DiscoverTools(cfg.Paths.MKVToolNix, logger)
	if err != nil {
		return err
	}
	tracks, err := tools.Source.Tracks(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		fmt.Println("No subtitle tracks found.")
		return nil
	}
	fmt.Println(renderTable(
		[]string{"ID", "Codec", "Language", "Name", "Flags", "Translatable"},
		trackRows(tracks),
		0,
	))
	return nil
}

func trackRows(tracks []mkv.SubtitleTrack) [][]string {
	rows := make([][]string, 0, len(tracks))
	for _, t := range tracks {
		var flags string
		if t.Default {
			flags += "default "
		}
		if t.Forced {
			flags += "forced"
		}
		lang := t.Language
		if lang != "" && lang != "und" {
			lang = fmt.Sprintf("%s (%s)", lang, language.DisplayName(lang))
		}
		translatable := "no"
		if t.Text() {
			translatable = "yes"
		}
		rows = append(rows, []string{
			strconv.Itoa(t.ID), t.Codec, lang, t.Name, flags, translatable,
		})
	}
	return rows
}
