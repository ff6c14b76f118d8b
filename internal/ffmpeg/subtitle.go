package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Stream is a subtitle stream as reported by ffprobe.
type Stream struct {
	Index    int
	Codec    string
	Language string
	Title    string
}

type ffprobeStreams struct {
	Streams []struct {
		Index     int    `json:"index"`
		CodecName string `json:"codec_name"`
		CodecType string `json:"codec_type"`
		Tags      struct {
			Language string `json:"language"`
			Title    string `json:"title"`
		} `json:"tags"`
	} `json:"streams"`
}

// SubtitleStreams lists the subtitle streams of a media file.
func SubtitleStreams(ctx context.Context, path string) ([]Stream, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("file not found: %w", err)
	}

	ffprobePath, err := FFprobePath()
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "s",
		path,
	)

	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseStreams(out.Bytes())
}

func parseStreams(data []byte) ([]Stream, error) {
	var probe ffprobeStreams
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	var streams []Stream
	for _, s := range probe.Streams {
		if s.CodecType != "" && s.CodecType != "subtitle" {
			continue
		}
		streams = append(streams, Stream{
			Index:    s.Index,
			Codec:    s.CodecName,
			Language: s.Tags.Language,
			Title:    s.Tags.Title,
		})
	}
	return streams, nil
}

// ExtractSubtitle copies one subtitle stream of input into out without
// re-encoding. It is the fallback when MKVToolNix is not installed.
func ExtractSubtitle(ctx context.Context, input string, streamIndex int, out string) error {
	if _, err := os.Stat(input); err != nil {
		return fmt.Errorf("input not found: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ffmpegPath, err := FFmpegPath()
	if err != nil {
		return err
	}

	kwargs := ffmpeg.KwArgs{
		"map": fmt.Sprintf("0:%d", streamIndex),
		"c:s": "copy",
	}
	if strings.EqualFold(filepath.Ext(out), ".srt") {
		// text codecs other than subrip need converting for .srt
		kwargs["c:s"] = "srt"
	}

	var stderr bytes.Buffer
	cmd := ffmpeg.Input(input).
		Output(out, kwargs).
		OverWriteOutput().
		SetFfmpegPath(ffmpegPath).
		WithErrorOutput(&stderr).
		Compile()

	if err := runContext(ctx, cmd); err != nil {
		_ = os.Remove(out)
		return fmt.Errorf("ffmpeg extraction failed: %w: %s", err, lastLine(stderr.String()))
	}
	return nil
}

// runs cmd and kills it when ctx is cancelled
func runContext(ctx context.Context, cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return ctx.Err()
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}
