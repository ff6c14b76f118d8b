package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mgpai22/subauto/internal/ffmpeg"
	"github.com/mgpai22/subauto/internal/logging"
	"github.com/mgpai22/subauto/internal/mkv"
)

// Source lists and extracts subtitle tracks of a container.
type Source interface {
	Tracks(ctx context.Context, path string) ([]mkv.SubtitleTrack, error)
	Extract(ctx context.Context, path string, trackID int, out string) (string, error)
}

// Muxer writes a subtitle into a copy of a container.
type Muxer interface {
	Merge(ctx context.Context, req mkv.MergeRequest) error
}

// FFmpegSource reads subtitle streams with ffprobe and ffmpeg. Stream
// indices stand in for mkvmerge track ids, which match for Matroska input.
type FFmpegSource struct{}

func (FFmpegSource) Tracks(ctx context.Context, path string) ([]mkv.SubtitleTrack, error) {
	streams, err := ffmpeg.SubtitleStreams(ctx, path)
	if err != nil {
		return nil, err
	}
	tracks := make([]mkv.SubtitleTrack, len(streams))
	for i, s := range streams {
		tracks[i] = mkv.SubtitleTrack{
			ID:       s.Index,
			Codec:    s.Codec,
			Language: s.Language,
			Name:     s.Title,
		}
	}
	return tracks, nil
}

func (f FFmpegSource) Extract(ctx context.Context, path string, trackID int, out string) (string, error) {
	tracks, err := f.Tracks(ctx, path)
	if err != nil {
		return "", err
	}
	track, err := mkv.FindTrack(tracks, trackID)
	if err != nil {
		return "", err
	}
	if !track.Text() {
		return "", fmt.Errorf("%w: track %d is %s", mkv.ErrUnsupportedTrack, trackID, track.Codec)
	}
	if out == "" {
		out = mkv.DefaultExtractPath(path, "", track)
	}
	if err := ffmpeg.ExtractSubtitle(ctx, path, trackID, out); err != nil {
		return "", err
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("extraction finished but %s is missing", filepath.Base(out))
	}
	return out, nil
}

// Tools is what the pipeline found on this machine.
type Tools struct {
	Source Source
	// Muxer is nil when MKVToolNix is missing
	Muxer Muxer
	// Verify counts subtitle streams; nil when ffprobe is missing
	Verify func(ctx context.Context, path string) (int, error)
}

// DiscoverTools prefers MKVToolNix and falls back to ffmpeg for extraction.
func DiscoverTools(mkvtoolnixDir string, logger *logging.Logger) (Tools, error) {
	logger = logging.OrNop(logger)
	var tools Tools

	toolkit, err := mkv.New(mkvtoolnixDir, logger)
	switch {
	case err == nil:
		tools.Source = toolkit
		tools.Muxer = toolkit
	case ffmpeg.Available():
		logger.Warnw("MKVToolNix not found, extracting with ffmpeg", "error", err)
		tools.Source = FFmpegSource{}
	default:
		return Tools{}, err
	}

	if ffmpeg.Available() {
		tools.Verify = CountSubtitleStreams
	}
	return tools, nil
}

// CountSubtitleStreams counts the subtitle streams ffprobe sees in path.
func CountSubtitleStreams(ctx context.Context, path string) (int, error) {
	streams, err := ffmpeg.SubtitleStreams(ctx, path)
	if err != nil {
		return 0, err
	}
	return len(streams), nil
}
