package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseStreams(t *testing.T) {
	data := []byte(`{
		"streams": [
			{"index": 2, "codec_name": "ass", "codec_type": "subtitle", "tags": {"language": "eng", "title": "Dialogue"}},
			{"index": 5, "codec_name": "subrip", "codec_type": "subtitle", "tags": {"language": "ind"}}
		]
	}`)

	streams, err := parseStreams(data)
	if err != nil {
		t.Fatalf("parseStreams error: %v", err)
	}
	if len(streams) != 2 {
		t.Fatalf("expected 2 streams, got %d", len(streams))
	}
	if streams[0].Index != 2 || streams[0].Codec != "ass" || streams[0].Title != "Dialogue" {
		t.Errorf("unexpected first stream: %+v", streams[0])
	}
	if streams[1].Language != "ind" {
		t.Errorf("expected language ind, got %q", streams[1].Language)
	}
}

func TestParseStreamsInvalid(t *testing.T) {
	if _, err := parseStreams([]byte("{")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestLocateFromDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"ffmpeg", "ffprobe"} {
		path := filepath.Join(dir, name+executableSuffix())
		if err := os.WriteFile(path, []byte("bin"), 0o755); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	paths, err := locate(dir, "")
	if err != nil {
		t.Fatalf("locate error: %v", err)
	}
	if paths.FFprobe != filepath.Join(dir, "ffprobe"+executableSuffix()) {
		t.Errorf("unexpected ffprobe path: %s", paths.FFprobe)
	}
}

func TestLocateMissing(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	_, err := locate("", "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSubtitleStreamsMissingFile(t *testing.T) {
	_, err := SubtitleStreams(context.Background(), filepath.Join(t.TempDir(), "nope.mkv"))
	if err == nil {
		t.Error("expected error for missing file")
	}
}
