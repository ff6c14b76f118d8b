package mkv

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const identifyJSON = `{
  "container": {"recognized": true, "supported": true, "type": "Matroska"},
  "errors": [],
  "tracks": [
    {"id": 0, "type": "video", "codec": "HEVC/H.265/MPEG-H", "properties": {"language": "und"}},
    {"id": 1, "type": "audio", "codec": "AAC", "properties": {"language": "jpn"}},
    {"id": 2, "type": "subtitles", "codec": "HDMV PGS", "properties": {"language": "eng", "track_name": "Full", "default_track": true}},
    {"id": 3, "type": "subtitles", "codec": "SubStationAlpha", "properties": {"language": "eng", "track_name": "Dialogue", "forced_track": false}},
    {"id": 4, "type": "subtitles", "codec": "SubRip/SRT", "properties": {"language": "spa"}},
    {"id": 5, "type": "subtitles", "codec": "SubRip/SRT", "properties": {}}
  ]
}`

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	calls   []call
	respond func(name string, args []string) (Result, error)
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) (Result, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	return f.respond(name, args)
}

func newTestToolkit(respond func(name string, args []string) (Result, error)) (*Toolkit, *fakeRunner) {
	fr := &fakeRunner{respond: respond}
	tk := NewWithRunner(Tools{Merge: "mkvmerge", Extract: "mkvextract"}, fr.run, nil)
	return tk, fr
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestParseTracks(t *testing.T) {
	tracks, err := parseTracks([]byte(identifyJSON))
	require.NoError(t, err)
	require.Len(t, tracks, 4)

	assert.Equal(t, SubtitleTrack{ID: 2, Codec: "HDMV PGS", Language: "eng", Name: "Full", Default: true}, tracks[0])
	assert.Equal(t, ".sup", tracks[0].Extension())
	assert.False(t, tracks[0].Text())

	assert.Equal(t, ".ass", tracks[1].Extension())
	assert.True(t, tracks[1].Text())

	assert.Equal(t, ".srt", tracks[2].Extension())
	assert.Equal(t, "und", tracks[3].Language)
}

func TestParseTracksErrors(t *testing.T) {
	_, err := parseTracks([]byte(`{"container": {"recognized": false}, "tracks": []}`))
	assert.Error(t, err)

	_, err = parseTracks([]byte(`{"container": {"recognized": true}, "errors": ["broken file"]}`))
	assert.ErrorContains(t, err, "broken file")

	_, err = parseTracks([]byte(`not json`))
	assert.Error(t, err)
}

func TestPickTrack(t *testing.T) {
	tracks, err := parseTracks([]byte(identifyJSON))
	require.NoError(t, err)

	tr, err := PickTrack(tracks, "es")
	require.NoError(t, err)
	assert.Equal(t, 4, tr.ID)

	tr, err = PickTrack(tracks, "English")
	require.NoError(t, err)
	assert.Equal(t, 3, tr.ID, "PGS track must be skipped")

	tr, err = PickTrack(tracks, "")
	require.NoError(t, err)
	assert.Equal(t, 3, tr.ID)

	_, err = PickTrack(tracks[:1], "eng")
	assert.ErrorIs(t, err, ErrTrackNotFound)
}

func TestTracksRunsIdentify(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "ep01.mkv")
	touch(t, src)

	tk, fr := newTestToolkit(func(name string, args []string) (Result, error) {
		return Result{Stdout: []byte(identifyJSON)}, nil
	})

	tracks, err := tk.Tracks(context.Background(), src)
	require.NoError(t, err)
	assert.Len(t, tracks, 4)
	require.Len(t, fr.calls, 1)
	assert.Equal(t, []string{"-J", src}, fr.calls[0].args)
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "ep01.mkv")
	touch(t, src)

	tk, fr := newTestToolkit(func(name string, args []string) (Result, error) {
		if name == "mkvmerge" {
			return Result{Stdout: []byte(identifyJSON)}, nil
		}
		_, out, _ := strings.Cut(args[2], ":")
		touch(t, out)
		return Result{}, nil
	})

	out, err := tk.Extract(context.Background(), src, 3, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ep01_track3.ass"), out)
	assert.Equal(t, []string{"tracks", src, "3:" + out}, fr.calls[1].args)

	_, err = tk.Extract(context.Background(), src, 2, "")
	assert.ErrorIs(t, err, ErrUnsupportedTrack)

	_, err = tk.Extract(context.Background(), src, 9, "")
	assert.ErrorIs(t, err, ErrTrackNotFound)
}

func TestMergeArgs(t *testing.T) {
	args := MergeArgs(MergeRequest{
		Source:        "in.mkv",
		Subtitle:      "in.ind.ass",
		Language:      "Indonesian",
		Default:       true,
		StripExisting: true,
	}, "out.mkv")

	assert.Equal(t, []string{
		"-o", "out.mkv",
		"--no-subtitles",
		"in.mkv",
		"--language", "0:ind",
		"--track-name", "0:Indonesian",
		"--default-track", "0:yes",
		"in.ind.ass",
	}, args)

	args = MergeArgs(MergeRequest{
		Source:    "in.mkv",
		Subtitle:  "in.srt",
		Language:  "ja",
		TrackName: "Japanese (AI)",
	}, "out.mkv")
	assert.Equal(t, []string{
		"-o", "out.mkv",
		"in.mkv",
		"--language", "0:jpn",
		"--track-name", "0:Japanese (AI)",
		"in.srt",
	}, args)
}

func TestMergeWarningsCountAsSuccess(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "ep01.mkv")
	sub := filepath.Join(dir, "ep01.ind.srt")
	out := filepath.Join(dir, "ep01_translated.mkv")
	touch(t, src)
	touch(t, sub)

	tk, _ := newTestToolkit(func(name string, args []string) (Result, error) {
		touch(t, args[1])
		return Result{ExitCode: 1, Stdout: []byte("Warning: something odd")}, nil
	})

	err := tk.Merge(context.Background(), MergeRequest{
		Source: src, Subtitle: sub, Output: out, Language: "id",
	})
	require.NoError(t, err)
	assert.FileExists(t, out)
}

func TestMergeErrorLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "ep01.mkv")
	sub := filepath.Join(dir, "ep01.ind.srt")
	out := filepath.Join(dir, "ep01_translated.mkv")
	touch(t, src)
	touch(t, sub)

	tk, _ := newTestToolkit(func(name string, args []string) (Result, error) {
		touch(t, args[1])
		return Result{ExitCode: 2, Stdout: []byte("Error: the file could not be opened")}, nil
	})

	err := tk.Merge(context.Background(), MergeRequest{
		Source: src, Subtitle: sub, Output: out, Language: "id",
	})
	assert.ErrorContains(t, err, "could not be opened")
	assert.NoFileExists(t, out)
	assert.NoFileExists(t, filepath.Join(dir, ".ep01_translated.mkv.partial.mkv"))
}

func TestReplaceSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "ep01.mkv")
	merged := filepath.Join(dir, "merged.mkv")
	require.NoError(t, os.WriteFile(src, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(merged, []byte("new"), 0o644))

	backup, err := ReplaceSource(src, merged)
	require.NoError(t, err)

	data, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	data, err = os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestFindToolsEnvOverride(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"mkvmerge", "mkvextract"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+executableSuffix()), []byte("#!/bin/sh\n"), 0o755))
	}
	t.Setenv(EnvToolPath, dir)

	tools, err := FindTools("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "mkvmerge"+executableSuffix()), tools.Merge)
}

func TestFindToolsMissing(t *testing.T) {
	t.Setenv(EnvToolPath, t.TempDir())
	t.Setenv("PATH", t.TempDir())

	_, err := FindTools(t.TempDir())
	assert.ErrorIs(t, err, ErrToolNotFound)
}
