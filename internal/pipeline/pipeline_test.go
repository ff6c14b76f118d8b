package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgpai22/subauto/internal/history"
	"github.com/mgpai22/subauto/internal/job"
	"github.com/mgpai22/subauto/internal/mkv"
	"github.com/mgpai22/subauto/internal/subtitle"
	"github.com/mgpai22/subauto/internal/translate"
)

const srtFixture = `1
00:00:01,000 --> 00:00:02,500
Hello there.

2
00:00:03,000 --> 00:00:04,000
How are you?

3
00:00:05,250 --> 00:00:07,000
I'm fine, thanks.

4
00:00:08,000 --> 00:00:09,000
See you tomorrow.

5
00:00:10,000 --> 00:00:12,345
Goodbye.
`

type fakeSource struct {
	tracks    []mkv.SubtitleTrack
	extracted int
}

func (f *fakeSource) Tracks(context.Context, string) ([]mkv.SubtitleTrack, error) {
	return f.tracks, nil
}

func (f *fakeSource) Extract(_ context.Context, _ string, _ int, out string) (string, error) {
	f.extracted++
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", err
	}
	return out, os.WriteFile(out, []byte(srtFixture), 0o644)
}

type fakeMuxer struct {
	requests []mkv.MergeRequest
}

func (f *fakeMuxer) Merge(_ context.Context, req mkv.MergeRequest) error {
	f.requests = append(f.requests, req)
	return os.WriteFile(req.Output, []byte("muxed"), 0o644)
}

type echoTranslator struct {
	mu     sync.Mutex
	seen   []int
	failAt int
}

func (e *echoTranslator) TranslateBatch(_ context.Context, req translate.Request) (translate.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var resp translate.Response
	for _, item := range req.Items {
		if e.failAt > 0 && item.Index == e.failAt {
			return translate.Response{}, translate.ErrRateLimited
		}
	}
	for _, item := range req.Items {
		e.seen = append(e.seen, item.Index)
		resp.Results = append(resp.Results, translate.TranslationResult{
			Index: item.Index,
			Text:  "[id] " + item.Text,
		})
	}
	return resp, nil
}

type fixture struct {
	dir     string
	input   string
	source  *fakeSource
	muxer   *fakeMuxer
	store   *job.Store
	history *history.Store
	streams int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "ep01.mkv")
	require.NoError(t, os.WriteFile(input, []byte("matroska"), 0o644))

	store, err := job.NewStore(filepath.Join(dir, "state"))
	require.NoError(t, err)
	hist, err := history.Open(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = hist.Close() })

	return &fixture{
		dir:   dir,
		input: input,
		source: &fakeSource{tracks: []mkv.SubtitleTrack{
			{ID: 2, Codec: "HDMV PGS", Language: "eng"},
			{ID: 3, Codec: "SubRip/SRT", Language: "eng", Name: "Full"},
		}},
		muxer:   &fakeMuxer{},
		store:   store,
		history: hist,
		streams: 3,
	}
}

func (f *fixture) runner(tr translate.Translator) *Runner {
	return New(Deps{
		Tools: Tools{
			Source: f.source,
			Muxer:  f.muxer,
			Verify: func(context.Context, string) (int, error) { return f.streams, nil },
		},
		Translator: tr,
		Store:      f.store,
		History:    f.history,
	})
}

func (f *fixture) request() Request {
	return Request{
		Input:          f.input,
		TrackID:        TrackAuto,
		TargetLanguage: "id",
		Provider:       "gemini",
		Model:          "gemini-2.5-flash",
		Job:            job.Options{BatchSize: 2},
		OutputMode:     OutputNewFile,
		WorkDir:        filepath.Join(f.dir, "work"),
		DefaultTrack:   true,
	}
}

func TestRunNewFile(t *testing.T) {
	f := newFixture(t)
	req := f.request()
	req.KeepSubtitle = true

	res, err := f.runner(&echoTranslator{}).Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(f.dir, "ep01_translated.mkv"), res.Output)
	assert.FileExists(t, res.Output)
	assert.Equal(t, 3, res.Track.ID, "the PGS track is skipped")
	assert.Equal(t, 5, res.Job.Progress)
	assert.Equal(t, job.StatusMuxed, res.Job.Status)
	assert.False(t, res.Resumed)

	require.Len(t, f.muxer.requests, 1)
	merge := f.muxer.requests[0]
	assert.Equal(t, f.input, merge.Source)
	assert.Equal(t, "id", merge.Language)
	assert.Equal(t, "Indonesian", merge.TrackName)
	assert.True(t, merge.Default)
	assert.Equal(t, res.SubtitlePath, merge.Subtitle)

	translated, err := subtitle.Open(res.SubtitlePath)
	require.NoError(t, err)
	original, err := subtitle.Open(res.Job.SubtitlePath)
	require.NoError(t, err)
	got := translated.Subtitle().Entries
	want := original.Subtitle().Entries
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].StartTime, got[i].StartTime)
		assert.Equal(t, want[i].EndTime, got[i].EndTime)
		assert.Equal(t, "[id] "+want[i].Text, got[i].Text)
	}

	_, err = f.store.Load(res.Job.ID)
	assert.ErrorIs(t, err, job.ErrJobNotFound, "state is discarded")

	entries, err := f.history.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, history.StatusCompleted, entries[0].Status)
	assert.Equal(t, 5, entries[0].LinesTranslated)
	assert.Equal(t, "eng", entries[0].SourceLanguage)
}

func TestRunFailureThenResume(t *testing.T) {
	f := newFixture(t)
	req := f.request()

	failing := &echoTranslator{failAt: 2}
	_, err := f.runner(failing).Run(context.Background(), req)
	require.ErrorIs(t, err, translate.ErrRateLimited)
	assert.Empty(t, f.muxer.requests)

	entries, err := f.history.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, history.StatusFailed, entries[0].Status)
	assert.Equal(t, 2, entries[0].LinesTranslated)

	jobs, err := f.store.List()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 2, jobs[0].Progress)
	assert.True(t, job.Resumable(jobs[0], f.input))

	working := &echoTranslator{}
	res, err := f.runner(working).Resume(context.Background(), jobs[0].ID, req)
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	assert.Equal(t, []int{2, 3, 4}, working.seen)
	assert.Equal(t, 1, f.source.extracted, "the extracted track is reused")
	assert.Equal(t, 5, res.Job.Progress)
}

func TestRerunResumesStoredJobWithNewModel(t *testing.T) {
	f := newFixture(t)
	req := f.request()

	_, err := f.runner(&echoTranslator{failAt: 2}).Run(context.Background(), req)
	require.ErrorIs(t, err, translate.ErrRateLimited)

	req.Model = "gemini-2.5-pro"
	res, err := f.runner(&echoTranslator{failAt: 4}).Run(context.Background(), req)
	require.ErrorIs(t, err, translate.ErrRateLimited)
	assert.True(t, res.Resumed)
	assert.Equal(t, 4, res.Job.Progress, "result carries the reloaded job")
	assert.Equal(t, job.StatusFailed, res.Job.Status)

	stored, err := f.store.Load(res.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.Progress)
	assert.Equal(t, "gemini-2.5-pro", stored.Model)
}

func TestRunReplaceKeepsBackup(t *testing.T) {
	f := newFixture(t)
	req := f.request()
	req.OutputMode = OutputReplace

	res, err := f.runner(&echoTranslator{}).Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, f.input, res.Output)
	assert.Equal(t, f.input+".bak", res.Backup)
	data, err := os.ReadFile(f.input)
	require.NoError(t, err)
	assert.Equal(t, "muxed", string(data))
	data, err = os.ReadFile(res.Backup)
	require.NoError(t, err)
	assert.Equal(t, "matroska", string(data))
}

func TestRunWithoutMuxer(t *testing.T) {
	f := newFixture(t)
	r := New(Deps{
		Tools:      Tools{Source: f.source},
		Translator: &echoTranslator{},
		Store:      f.store,
	})

	_, err := r.Run(context.Background(), f.request())
	assert.ErrorIs(t, err, mkv.ErrToolNotFound)
	assert.Zero(t, f.source.extracted, "fails before extracting")

	req := f.request()
	req.NoMux = true
	res, err := r.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.dir, "ep01.ind.srt"), res.Output)
	assert.FileExists(t, res.Output)
}

func TestRunVerificationMismatch(t *testing.T) {
	f := newFixture(t)
	f.streams = 2

	_, err := f.runner(&echoTranslator{}).Run(context.Background(), f.request())
	assert.ErrorIs(t, err, ErrVerification)
	assert.NoFileExists(t, filepath.Join(f.dir, "ep01_translated.mkv"))
}

func TestRunStripExistingExpectsOneStream(t *testing.T) {
	f := newFixture(t)
	f.streams = 1
	req := f.request()
	req.StripExisting = true

	_, err := f.runner(&echoTranslator{}).Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, f.muxer.requests[0].StripExisting)
}

func TestTranslateSubtitle(t *testing.T) {
	f := newFixture(t)
	input := filepath.Join(f.dir, "movie.srt")
	require.NoError(t, os.WriteFile(input, []byte(srtFixture), 0o644))

	req := f.request()
	req.Input = input
	req.SourceLanguage = "en"

	res, err := f.runner(&echoTranslator{}).TranslateSubtitle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.dir, "movie.ind.srt"), res.Output)

	data, err := os.ReadFile(res.Output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[id] Hello there.")
	assert.Contains(t, string(data), "00:00:10,000 --> 00:00:12,345")

	jobs, err := f.store.List()
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestPrepareDoesNotTranslate(t *testing.T) {
	f := newFixture(t)
	tr := &echoTranslator{}
	req := f.request()
	req.TrackID = 3

	p, err := f.runner(tr).Prepare(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, p.Job.Entries, 5)
	assert.Empty(t, tr.seen)
	assert.True(t, strings.HasPrefix(p.Job.SubtitlePath, filepath.Join(f.dir, "work", p.Job.ID)))
}

func TestChooseTrack(t *testing.T) {
	tracks := []mkv.SubtitleTrack{
		{ID: 2, Codec: "HDMV PGS", Language: "eng"},
		{ID: 3, Codec: "SubRip/SRT", Language: "eng"},
		{ID: 4, Codec: "SubStationAlpha", Language: "jpn"},
	}

	tr, err := chooseTrack(tracks, TrackAuto, "ja")
	require.NoError(t, err)
	assert.Equal(t, 4, tr.ID)

	tr, err = chooseTrack(tracks, TrackAuto, "")
	require.NoError(t, err)
	assert.Equal(t, 3, tr.ID)

	_, err = chooseTrack(tracks, 2, "")
	assert.ErrorIs(t, err, mkv.ErrUnsupportedTrack)

	_, err = chooseTrack(tracks, 9, "")
	assert.ErrorIs(t, err, mkv.ErrTrackNotFound)
}

func TestParseOutputMode(t *testing.T) {
	m, err := ParseOutputMode("")
	require.NoError(t, err)
	assert.Equal(t, OutputNewFile, m)

	m, err = ParseOutputMode("REPLACE")
	require.NoError(t, err)
	assert.Equal(t, OutputReplace, m)

	_, err = ParseOutputMode("overwrite")
	assert.Error(t, err)

	assert.Equal(t, "/a/b/show_translated.mkv", TranslatedOutputPath("/a/b/show.mkv"))
}
