// Package pipeline runs the extract, translate and mux steps for one file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mgpai22/subauto/internal/estimate"
	"github.com/mgpai22/subauto/internal/history"
	"github.com/mgpai22/subauto/internal/job"
	"github.com/mgpai22/subauto/internal/language"
	"github.com/mgpai22/subauto/internal/logging"
	"github.com/mgpai22/subauto/internal/mkv"
	"github.com/mgpai22/subauto/internal/subtitle"
	"github.com/mgpai22/subauto/internal/translate"
)

var ErrVerification = errors.New("muxed file failed verification")

type OutputMode string

const (
	OutputNewFile OutputMode = "new_file"
	OutputReplace OutputMode = "replace"
)

func ParseOutputMode(s string) (OutputMode, error) {
	switch m := OutputMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", OutputNewFile:
		return OutputNewFile, nil
	case OutputReplace:
		return OutputReplace, nil
	default:
		return "", fmt.Errorf("unknown output mode %q (want %s or %s)", s, OutputNewFile, OutputReplace)
	}
}

// TrackAuto lets the pipeline pick the track.
const TrackAuto = -1

// Request describes one file to translate.
type Request struct {
	Input string
	// TrackID selects the subtitle track, TrackAuto to pick one
	TrackID        int
	SourceLanguage string
	TargetLanguage string

	Provider string
	Model    string
	Preset   string
	Job      job.Options
	Prices   estimate.Prices

	OutputMode OutputMode
	// Output overrides the output path
	Output        string
	WorkDir       string
	StripExisting bool
	DefaultTrack  bool
	TrackName     string
	// NoMux stops after writing the translated subtitle
	NoMux bool
	// KeepSubtitle keeps the extracted and translated subtitles in WorkDir
	KeepSubtitle bool
}

// Result describes a finished run.
type Result struct {
	Job          *job.Job
	Track        mkv.SubtitleTrack
	SubtitlePath string
	Output       string
	// Backup is the kept original in replace mode
	Backup   string
	Resumed  bool
	Duration time.Duration
	Cost     *float64
}

// Prepared is a job ready to translate.
type Prepared struct {
	Job     *job.Job
	File    subtitle.File
	Track   mkv.SubtitleTrack
	Tracks  []mkv.SubtitleTrack
	Resumed bool
}

type Deps struct {
	Tools      Tools
	Translator translate.Translator
	Store      *job.Store
	// History is optional
	History *history.Store
	Logger  *logging.Logger
}

type Runner struct {
	tools      Tools
	translator translate.Translator
	store      *job.Store
	history    *history.Store
	logger     *logging.Logger
	now        func() time.Time
}

func New(deps Deps) *Runner {
	return &Runner{
		tools:      deps.Tools,
		translator: deps.Translator,
		store:      deps.Store,
		history:    deps.History,
		logger:     logging.OrNop(deps.Logger).Named("pipeline"),
		now:        time.Now,
	}
}

// Prepare probes, picks and extracts the track, and loads or creates its
// job. Nothing is sent to a provider.
func (r *Runner) Prepare(ctx context.Context, req Request) (*Prepared, error) {
	if r.tools.Source == nil {
		return nil, fmt.Errorf("%w: no subtitle extractor available", mkv.ErrToolNotFound)
	}
	if strings.TrimSpace(req.TargetLanguage) == "" {
		return nil, fmt.Errorf("%w: target language is required", job.ErrInvalidJob)
	}

	tracks, err := r.tools.Source.Tracks(ctx, req.Input)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", filepath.Base(req.Input), err)
	}
	track, err := chooseTrack(tracks, req.TrackID, req.SourceLanguage)
	if err != nil {
		return nil, err
	}

	hash, err := job.HashFile(req.Input)
	if err != nil {
		return nil, err
	}
	id := job.MakeID(hash, track.ID, req.TargetLanguage)

	existing := r.loadExisting(id, hash)
	subPath := mkv.DefaultExtractPath(req.Input, r.jobDir(req, id), track)
	if existing != nil && fileExists(existing.SubtitlePath) {
		subPath = existing.SubtitlePath
	} else {
		r.logger.Infow("extracting subtitle track",
			"file", filepath.Base(req.Input),
			"track", track.DisplayName(),
		)
		if subPath, err = r.tools.Source.Extract(ctx, req.Input, track.ID, subPath); err != nil {
			return nil, fmt.Errorf("extract track %d: %w", track.ID, err)
		}
	}

	file, err := subtitle.Open(subPath)
	if err != nil {
		return nil, fmt.Errorf("parse extracted subtitle: %w", err)
	}

	sourceLang := req.SourceLanguage
	if sourceLang == "" && track.Language != "" && track.Language != "und" {
		sourceLang = track.Language
	}
	j, resumed := r.loadOrCreate(existing, newJobParams{
		id:         id,
		source:     req.Input,
		hash:       hash,
		trackID:    track.ID,
		subPath:    subPath,
		sourceLang: sourceLang,
		file:       file,
		req:        req,
	})
	return &Prepared{Job: j, File: file, Track: track, Tracks: tracks, Resumed: resumed}, nil
}

// PrepareSubtitle loads or creates the job for a standalone subtitle file.
func (r *Runner) PrepareSubtitle(req Request) (*Prepared, error) {
	if strings.TrimSpace(req.TargetLanguage) == "" {
		return nil, fmt.Errorf("%w: target language is required", job.ErrInvalidJob)
	}
	file, err := subtitle.Open(req.Input)
	if err != nil {
		return nil, err
	}
	hash, err := job.HashFile(req.Input)
	if err != nil {
		return nil, err
	}
	id := job.MakeID(hash, TrackAuto, req.TargetLanguage)
	j, resumed := r.loadOrCreate(r.loadExisting(id, hash), newJobParams{
		id:         id,
		source:     req.Input,
		hash:       hash,
		trackID:    TrackAuto,
		subPath:    req.Input,
		sourceLang: req.SourceLanguage,
		file:       file,
		req:        req,
	})
	return &Prepared{Job: j, File: file, Track: mkv.SubtitleTrack{ID: TrackAuto}, Resumed: resumed}, nil
}

// Run takes an MKV through extraction, translation and muxing. Progress is
// saved after every batch, so a failed or cancelled run can be resumed by
// running the same request again.
func (r *Runner) Run(ctx context.Context, req Request) (res *Result, err error) {
	started := r.now()
	res = &Result{}
	defer func() {
		res.Duration = r.now().Sub(started)
		r.record(req, res, err)
	}()

	if !req.NoMux && r.tools.Muxer == nil {
		return res, fmt.Errorf("%w: mkvmerge is needed to mux the translated track", mkv.ErrToolNotFound)
	}

	prepared, err := r.Prepare(ctx, req)
	if err != nil {
		return res, err
	}
	res.Job, res.Track, res.Resumed = prepared.Job, prepared.Track, prepared.Resumed

	err = r.translate(ctx, req, prepared)
	res.Job = prepared.Job
	if err != nil {
		return res, err
	}

	res.SubtitlePath, err = r.writeTranslated(req, prepared)
	if err != nil {
		return res, err
	}

	if req.NoMux {
		res.Output = res.SubtitlePath
	} else if err := r.mux(ctx, req, prepared, res); err != nil {
		return res, err
	}

	r.finish(req, prepared)
	return res, nil
}

// TranslateSubtitle translates a standalone subtitle file and writes the
// translation next to it.
func (r *Runner) TranslateSubtitle(ctx context.Context, req Request) (res *Result, err error) {
	started := r.now()
	res = &Result{}
	defer func() {
		res.Duration = r.now().Sub(started)
		r.record(req, res, err)
	}()

	prepared, err := r.PrepareSubtitle(req)
	if err != nil {
		return res, err
	}
	res.Job, res.Track, res.Resumed = prepared.Job, prepared.Track, prepared.Resumed

	err = r.translate(ctx, req, prepared)
	res.Job = prepared.Job
	if err != nil {
		return res, err
	}

	out := req.Output
	if out == "" {
		out = subtitle.TranslatedPath(req.Input, language.ToISO3(req.TargetLanguage))
	}
	if err := subtitle.Apply(prepared.File, prepared.Job.Translations); err != nil {
		return res, err
	}
	if err := prepared.File.Write(out); err != nil {
		return res, fmt.Errorf("write translated subtitle: %w", err)
	}
	res.SubtitlePath, res.Output = out, out

	if err := r.store.Delete(prepared.Job.ID); err != nil {
		r.logger.Warnw("failed to discard job state", "job", prepared.Job.ID, "error", err)
	}
	return res, nil
}

// Resume continues a stored job with the settings it was created with.
// The request supplies the provider, model and output settings.
func (r *Runner) Resume(ctx context.Context, id string, req Request) (*Result, error) {
	stored, err := r.store.Load(id)
	if err != nil {
		return nil, err
	}
	req.Input = stored.SourcePath
	req.TrackID = stored.TrackID
	req.SourceLanguage = stored.SourceLanguage
	req.TargetLanguage = stored.TargetLanguage
	if stored.Preset != "" && req.Preset == "" {
		req.Preset = stored.Preset
	}
	if stored.TrackID == TrackAuto {
		return r.TranslateSubtitle(ctx, req)
	}
	return r.Run(ctx, req)
}

func (r *Runner) translate(ctx context.Context, req Request, p *Prepared) error {
	j := p.Job
	if j.Status.Finished() {
		r.logger.Infow("translation already complete", "job", j.ID)
		return nil
	}
	bt := job.NewBatchTranslator(r.translator, r.store, req.Job, r.logger)
	if !p.Resumed {
		return bt.Start(ctx, j)
	}

	r.logger.Infow("resuming job",
		"job", j.ID,
		"progress", fmt.Sprintf("%d/%d", j.Progress, len(j.Entries)),
	)
	// provider and model overrides are stored before the job is reloaded
	if err := r.store.Save(j); err != nil {
		return err
	}
	resumed, err := bt.Resume(ctx, j.ID)
	if resumed != nil {
		p.Job = resumed
	}
	return err
}

func (r *Runner) writeTranslated(req Request, p *Prepared) (string, error) {
	if err := subtitle.Apply(p.File, p.Job.Translations); err != nil {
		return "", err
	}
	lang := language.ToISO3(req.TargetLanguage)
	path := subtitle.TranslatedPath(p.Job.SubtitlePath, lang)
	if req.NoMux {
		path = req.Output
		if path == "" {
			stem := strings.TrimSuffix(req.Input, filepath.Ext(req.Input))
			path = stem + "." + lang + filepath.Ext(p.Job.SubtitlePath)
		}
	}
	if err := p.File.Write(path); err != nil {
		return "", fmt.Errorf("write translated subtitle: %w", err)
	}
	return path, nil
}

func (r *Runner) mux(ctx context.Context, req Request, p *Prepared, res *Result) error {
	out := req.Output
	if out == "" || req.OutputMode == OutputReplace {
		out = TranslatedOutputPath(req.Input)
	}

	trackName := req.TrackName
	if trackName == "" {
		trackName = language.DisplayName(req.TargetLanguage)
	}
	r.logger.Infow("muxing translated track", "output", filepath.Base(out), "track_name", trackName)
	err := r.tools.Muxer.Merge(ctx, mkv.MergeRequest{
		Source:        req.Input,
		Subtitle:      res.SubtitlePath,
		Output:        out,
		Language:      req.TargetLanguage,
		TrackName:     trackName,
		Default:       req.DefaultTrack,
		StripExisting: req.StripExisting,
	})
	if err != nil {
		return fmt.Errorf("mux: %w", err)
	}

	if err := r.verify(ctx, out, p, req.StripExisting); err != nil {
		_ = os.Remove(out)
		return err
	}

	if req.OutputMode == OutputReplace {
		backup, err := mkv.ReplaceSource(req.Input, out)
		if err != nil {
			return err
		}
		res.Backup = backup
		out = req.Input
	}
	res.Output = out

	p.Job.Status = job.StatusMuxed
	if err := r.store.Save(p.Job); err != nil {
		r.logger.Warnw("failed to save job state", "job", p.Job.ID, "error", err)
	}
	return nil
}

// verify checks that the mux added exactly one subtitle stream.
func (r *Runner) verify(ctx context.Context, out string, p *Prepared, stripped bool) error {
	if r.tools.Verify == nil {
		return nil
	}
	got, err := r.tools.Verify(ctx, out)
	if err != nil {
		r.logger.Warnw("could not verify muxed file", "error", err)
		return nil
	}
	want := len(p.Tracks) + 1
	if stripped {
		want = 1
	}
	if got != want {
		return fmt.Errorf("%w: %d subtitle streams, expected %d", ErrVerification, got, want)
	}
	r.logger.Debugw("verified muxed file", "subtitle_streams", got)
	return nil
}

// finish discards the job state and the work files of a completed run.
func (r *Runner) finish(req Request, p *Prepared) {
	if err := r.store.Delete(p.Job.ID); err != nil {
		r.logger.Warnw("failed to discard job state", "job", p.Job.ID, "error", err)
	}
	if req.KeepSubtitle {
		return
	}
	dir := filepath.Dir(p.Job.SubtitlePath)
	if filepath.Base(dir) == p.Job.ID {
		_ = os.RemoveAll(dir)
	}
}

func (r *Runner) record(req Request, res *Result, runErr error) {
	if r.history == nil {
		return
	}
	entry := &history.Entry{
		SourceFile:     req.Input,
		OutputFile:     res.Output,
		TrackID:        TrackAuto,
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
		Provider:       req.Provider,
		Model:          req.Model,
		Preset:         req.Preset,
		Duration:       res.Duration,
		Status:         history.StatusCompleted,
	}
	if j := res.Job; j != nil {
		entry.TrackID = j.TrackID
		entry.SourceLanguage = j.SourceLanguage
		entry.TotalLines = len(j.Entries)
		entry.LinesTranslated = j.Progress
		entry.PromptTokens = j.Usage.PromptTokens
		entry.CompletionTokens = j.Usage.CompletionTokens
		if !req.Prices.IsZero() {
			cost := estimate.Cost(j.Usage, req.Prices)
			entry.EstimatedCost = &cost
			res.Cost = &cost
		}
	}
	if runErr != nil {
		entry.Status = history.StatusFailed
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			entry.Status = history.StatusCancelled
		}
		entry.Error = runErr.Error()
	}

	// the run context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.history.Add(ctx, entry); err != nil {
		r.logger.Warnw("failed to record history", "error", err)
	}
}

type newJobParams struct {
	id         string
	source     string
	hash       string
	trackID    int
	subPath    string
	sourceLang string
	file       subtitle.File
	req        Request
}

func (r *Runner) loadExisting(id, hash string) *job.Job {
	existing, err := r.store.Load(id)
	if err != nil {
		if !errors.Is(err, job.ErrJobNotFound) {
			r.logger.Warnw("ignoring unreadable job state", "job", id, "error", err)
		}
		return nil
	}
	if existing.SourceHash != hash {
		return nil
	}
	return existing
}

// loadOrCreate reuses stored progress when it matches the parsed file.
func (r *Runner) loadOrCreate(existing *job.Job, p newJobParams) (*job.Job, bool) {
	entries := job.EntriesFromSubtitle(p.file.Subtitle().Entries)

	if existing != nil && len(existing.Entries) == len(entries) && existing.Validate() == nil {
		if p.req.Provider != "" {
			existing.Provider = p.req.Provider
		}
		if p.req.Model != "" {
			existing.Model = p.req.Model
		}
		return existing, existing.Progress > 0
	}
	if existing != nil {
		r.logger.Warnw("discarding stale job state", "job", existing.ID)
	}

	sourceLang := p.sourceLang
	if sourceLang == "" {
		texts := make([]string, 0, len(entries))
		for _, e := range entries {
			texts = append(texts, subtitle.Protect(e.Text, e.Style).Text)
		}
		sourceLang = language.Detect(texts)
		if sourceLang != "" {
			r.logger.Infow("detected source language", "language", language.DisplayName(sourceLang))
		}
	}

	return &job.Job{
		ID:             p.id,
		SourcePath:     p.source,
		SourceHash:     p.hash,
		TrackID:        p.trackID,
		SubtitlePath:   p.subPath,
		SourceLanguage: sourceLang,
		TargetLanguage: p.req.TargetLanguage,
		Provider:       p.req.Provider,
		Model:          p.req.Model,
		Preset:         p.req.Preset,
		BatchSize:      p.req.Job.BatchSize,
		Entries:        entries,
		Translations:   []string{},
		Status:         job.StatusPending,
	}, false
}

func (r *Runner) jobDir(req Request, id string) string {
	base := req.WorkDir
	if base == "" {
		base = filepath.Join(os.TempDir(), "subauto")
	}
	return filepath.Join(base, id)
}

// TranslatedOutputPath names the new-file output, <stem>_translated.mkv.
func TranslatedOutputPath(input string) string {
	stem := strings.TrimSuffix(input, filepath.Ext(input))
	return stem + "_translated.mkv"
}

func chooseTrack(tracks []mkv.SubtitleTrack, id int, sourceLang string) (mkv.SubtitleTrack, error) {
	if id != TrackAuto {
		track, err := mkv.FindTrack(tracks, id)
		if err != nil {
			return track, err
		}
		if !track.Text() {
			return track, fmt.Errorf("%w: track %d is %s", mkv.ErrUnsupportedTrack, id, track.Codec)
		}
		return track, nil
	}
	return mkv.PickTrack(tracks, sourceLang)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
