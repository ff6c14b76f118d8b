package mkv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mgpai22/subauto/internal/language"
	"github.com/mgpai22/subauto/internal/logging"
)

var (
	ErrTrackNotFound    = errors.New("subtitle track not found")
	ErrUnsupportedTrack = errors.New("subtitle track is image based")
)

// Toolkit drives mkvmerge and mkvextract.
type Toolkit struct {
	tools  Tools
	run    Runner
	logger *logging.Logger
}

// New locates the MKVToolNix binaries and returns a Toolkit using them.
func New(configDir string, logger *logging.Logger) (*Toolkit, error) {
	tools, err := FindTools(configDir)
	if err != nil {
		return nil, err
	}
	return NewWithRunner(tools, ExecRunner, logger), nil
}

func NewWithRunner(tools Tools, run Runner, logger *logging.Logger) *Toolkit {
	return &Toolkit{
		tools:  tools,
		run:    run,
		logger: logging.OrNop(logger).Named("mkv"),
	}
}

func (t *Toolkit) Tools() Tools {
	return t.tools
}

// Version returns the first line of mkvmerge --version.
func (t *Toolkit) Version(ctx context.Context) (string, error) {
	res, err := t.run(ctx, t.tools.Merge, "--version")
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", commandError("mkvmerge", res)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(res.Stdout)), "\n")
	return strings.TrimSpace(line), nil
}

// identify output of mkvmerge -J, trimmed to what we read
type identification struct {
	Container struct {
		Recognized bool `json:"recognized"`
		Supported  bool `json:"supported"`
	} `json:"container"`
	Errors []string `json:"errors"`
	Tracks []struct {
		ID         int    `json:"id"`
		Type       string `json:"type"`
		Codec      string `json:"codec"`
		Properties struct {
			Language     string `json:"language"`
			LanguageIETF string `json:"language_ietf"`
			TrackName    string `json:"track_name"`
			DefaultTrack bool   `json:"default_track"`
			ForcedTrack  bool   `json:"forced_track"`
		} `json:"properties"`
	} `json:"tracks"`
}

// Tracks lists the subtitle tracks of an MKV file.
func (t *Toolkit) Tracks(ctx context.Context, path string) ([]SubtitleTrack, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("mkv file not found: %w", err)
	}

	res, err := t.run(ctx, t.tools.Merge, "-J", path)
	if err != nil {
		return nil, fmt.Errorf("mkvmerge -J: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, commandError("mkvmerge -J", res)
	}

	return parseTracks(res.Stdout)
}

func parseTracks(data []byte) ([]SubtitleTrack, error) {
	var ident identification
	if err := json.Unmarshal(data, &ident); err != nil {
		return nil, fmt.Errorf("failed to parse mkvmerge output: %w", err)
	}
	if len(ident.Errors) > 0 {
		return nil, fmt.Errorf("mkvmerge: %s", strings.Join(ident.Errors, "; "))
	}
	if !ident.Container.Recognized {
		return nil, errors.New("mkvmerge: container not recognized")
	}

	var tracks []SubtitleTrack
	for _, tr := range ident.Tracks {
		if tr.Type != "subtitles" {
			continue
		}
		lang := tr.Properties.Language
		if lang == "" {
			lang = "und"
		}
		tracks = append(tracks, SubtitleTrack{
			ID:       tr.ID,
			Codec:    tr.Codec,
			Language: lang,
			Name:     tr.Properties.TrackName,
			Default:  tr.Properties.DefaultTrack,
			Forced:   tr.Properties.ForcedTrack,
		})
	}
	return tracks, nil
}

// FindTrack returns the track with the given id.
func FindTrack(tracks []SubtitleTrack, id int) (SubtitleTrack, error) {
	for _, tr := range tracks {
		if tr.ID == id {
			return tr, nil
		}
	}
	return SubtitleTrack{}, fmt.Errorf("%w: id %d", ErrTrackNotFound, id)
}

// PickTrack chooses a text track: the one whose language matches lang,
// otherwise the first text track.
func PickTrack(tracks []SubtitleTrack, lang string) (SubtitleTrack, error) {
	var first *SubtitleTrack
	for i := range tracks {
		tr := tracks[i]
		if !tr.Text() {
			continue
		}
		if lang != "" && language.Equal(tr.Language, lang) {
			return tr, nil
		}
		if first == nil {
			first = &tracks[i]
		}
	}
	if first == nil {
		return SubtitleTrack{}, fmt.Errorf("%w: no text subtitle tracks", ErrTrackNotFound)
	}
	return *first, nil
}

// DefaultExtractPath names an extracted track <stem>_track<id><ext> next to
// the source, or inside dir when set.
func DefaultExtractPath(mkvPath, dir string, track SubtitleTrack) string {
	stem := strings.TrimSuffix(filepath.Base(mkvPath), filepath.Ext(mkvPath))
	if dir == "" {
		dir = filepath.Dir(mkvPath)
	}
	return filepath.Join(dir, fmt.Sprintf("%s_track%d%s", stem, track.ID, track.Extension()))
}

// Extract writes one subtitle track to out. An empty out uses
// DefaultExtractPath. It returns the written path.
func (t *Toolkit) Extract(ctx context.Context, path string, trackID int, out string) (string, error) {
	tracks, err := t.Tracks(ctx, path)
	if err != nil {
		return "", err
	}
	track, err := FindTrack(tracks, trackID)
	if err != nil {
		return "", err
	}
	if !track.Text() {
		return "", fmt.Errorf("%w: track %d is %s", ErrUnsupportedTrack, trackID, track.Codec)
	}

	if out == "" {
		out = DefaultExtractPath(path, "", track)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	t.logger.Debugw("extracting track", "file", path, "track", trackID, "out", out)

	res, err := t.run(ctx, t.tools.Extract, "tracks", path, fmt.Sprintf("%d:%s", trackID, out))
	if err != nil {
		return "", fmt.Errorf("mkvextract: %w", err)
	}
	if res.ExitCode > 1 {
		return "", commandError("mkvextract", res)
	}
	if res.ExitCode == 1 {
		t.logger.Warnw("mkvextract finished with warnings", "output", lastLine(res))
	}

	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("extraction finished but %s is missing", out)
	}
	return out, nil
}

// MergeRequest describes a mux of one subtitle file into an MKV.
type MergeRequest struct {
	Source   string
	Subtitle string
	Output   string
	// any language form, converted to ISO 639-2
	Language      string
	TrackName     string
	Default       bool
	StripExisting bool
}

// MergeArgs builds the mkvmerge argument list for req writing to out.
func MergeArgs(req MergeRequest, out string) []string {
	args := []string{"-o", out}
	if req.StripExisting {
		args = append(args, "--no-subtitles")
	}
	args = append(args, req.Source)

	args = append(args, "--language", "0:"+language.ToISO3(req.Language))
	name := req.TrackName
	if name == "" {
		name = language.DisplayName(req.Language)
	}
	args = append(args, "--track-name", "0:"+name)
	if req.Default {
		args = append(args, "--default-track", "0:yes")
	}
	return append(args, req.Subtitle)
}

// Merge muxes the subtitle into a copy of the source. The output is written
// to a temporary file first and renamed over req.Output on success.
func (t *Toolkit) Merge(ctx context.Context, req MergeRequest) error {
	for _, p := range []string{req.Source, req.Subtitle} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("merge input missing: %w", err)
		}
	}
	if req.Output == "" {
		return errors.New("merge output path is required")
	}

	tmp := filepath.Join(
		filepath.Dir(req.Output),
		"."+filepath.Base(req.Output)+".partial.mkv",
	)
	_ = os.Remove(tmp)

	args := MergeArgs(req, tmp)
	t.logger.Debugw("muxing", "args", args)

	res, err := t.run(ctx, t.tools.Merge, args...)
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("mkvmerge: %w", err)
	}
	// exit code 1 means warnings, 2 means error
	if res.ExitCode > 1 {
		_ = os.Remove(tmp)
		return commandError("mkvmerge", res)
	}
	if res.ExitCode == 1 {
		t.logger.Warnw("mkvmerge finished with warnings", "output", lastLine(res))
	}

	if err := os.Rename(tmp, req.Output); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("move muxed file into place: %w", err)
	}
	return nil
}

// ReplaceSource swaps merged in for source, keeping the original at
// <source>.bak. It returns the backup path.
func ReplaceSource(source, merged string) (string, error) {
	backup := source + ".bak"
	if err := os.Rename(source, backup); err != nil {
		return "", fmt.Errorf("back up original: %w", err)
	}
	if err := os.Rename(merged, source); err != nil {
		if rerr := os.Rename(backup, source); rerr != nil {
			return "", fmt.Errorf("replace original: %w (restore failed: %v)", err, rerr)
		}
		return "", fmt.Errorf("replace original: %w", err)
	}
	return backup, nil
}

func commandError(name string, res Result) error {
	return fmt.Errorf("%s exited with code %d: %s", name, res.ExitCode, lastLine(res))
}

// mkvtoolnix prints errors on stdout, so fall back to it
func lastLine(res Result) string {
	out := strings.TrimSpace(string(res.Stderr))
	if out == "" {
		out = strings.TrimSpace(string(res.Stdout))
	}
	lines := strings.Split(out, "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
