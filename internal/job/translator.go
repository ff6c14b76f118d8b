package job

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mgpai22/subauto/internal/language"
	"github.com/mgpai22/subauto/internal/logging"
	"github.com/mgpai22/subauto/internal/subtitle"
	"github.com/mgpai22/subauto/internal/translate"
)

const (
	DefaultBatchSize    = 25
	DefaultContextLines = 3
)

// ProgressFunc is called after every committed batch.
type ProgressFunc func(done, total int, usage translate.Usage)

type Options struct {
	BatchSize    int
	Concurrency  int
	ContextLines int
	OnProgress   ProgressFunc
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.ContextLines < 0 {
		o.ContextLines = 0
	} else if o.ContextLines == 0 {
		o.ContextLines = DefaultContextLines
	}
	return o
}

// BatchTranslator drives a Job through a Translator in ordered batches. The
// progress marker only moves after a whole batch is translated, and every
// move is persisted before the next batch is committed.
type BatchTranslator struct {
	translator translate.Translator
	store      *Store
	opts       Options
	logger     *logging.Logger
}

// NewBatchTranslator returns a translator persisting to store. A nil store
// keeps progress in memory only.
func NewBatchTranslator(
	t translate.Translator,
	store *Store,
	opts Options,
	logger *logging.Logger,
) *BatchTranslator {
	return &BatchTranslator{
		translator: t,
		store:      store,
		opts:       opts.withDefaults(),
		logger:     logging.OrNop(logger).Named("job"),
	}
}

// Start processes the job from its current marker to the end.
func (b *BatchTranslator) Start(ctx context.Context, j *Job) error {
	if j == nil {
		return fmt.Errorf("%w: nil job", ErrInvalidJob)
	}
	if err := j.Validate(); err != nil {
		return err
	}
	if j.Translations == nil {
		j.Translations = []string{}
	}

	if b.store != nil {
		unlock, err := b.store.Lock(j.ID)
		if err != nil {
			return err
		}
		defer func() { _ = unlock() }()
	}

	batchSize := b.opts.BatchSize
	if j.BatchSize > 0 {
		batchSize = j.BatchSize
	}
	j.BatchSize = batchSize

	j.Status = StatusRunning
	j.LastError = ""
	if err := b.save(j); err != nil {
		return err
	}

	log := b.logger.With("job", j.ID)
	log.Infow("translating",
		"entries", len(j.Entries),
		"from", j.Progress,
		"batch_size", batchSize,
		"concurrency", b.opts.Concurrency,
	)

	var err error
	if b.opts.Concurrency > 1 {
		err = b.runConcurrent(ctx, j, batchSize)
	} else {
		err = b.runSequential(ctx, j, batchSize)
	}
	if err != nil {
		return b.stop(j, err)
	}

	j.Status = StatusTranslated
	if err := b.save(j); err != nil {
		return err
	}
	log.Infow("translation complete",
		"entries", len(j.Entries),
		"tokens", j.Usage.Total(),
	)
	return nil
}

// ProcessBatch translates entries and commits them. The batch must start at
// the job's marker; nothing is committed unless every entry is translated.
func (b *BatchTranslator) ProcessBatch(ctx context.Context, j *Job, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := b.checkBatch(j, entries); err != nil {
		return err
	}
	start := j.Progress
	texts, usage, err := b.translateBatch(ctx, j, start, entries)
	if err != nil {
		return batchError(start, len(entries), err)
	}
	return b.commit(j, start, texts, usage)
}

// Resume loads a stored job and continues it from the persisted marker.
// Finished jobs are returned unchanged.
func (b *BatchTranslator) Resume(ctx context.Context, id string) (*Job, error) {
	if b.store == nil {
		return nil, errors.New("resume needs a job store")
	}
	j, err := b.store.Load(id)
	if err != nil {
		return nil, err
	}
	if j.Status.Finished() {
		return j, nil
	}
	if j.Done() {
		j.Status = StatusTranslated
		return j, b.save(j)
	}
	if err := b.Start(ctx, j); err != nil {
		return j, err
	}
	return j, nil
}

func (b *BatchTranslator) runSequential(ctx context.Context, j *Job, batchSize int) error {
	for !j.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(j.Progress+batchSize, len(j.Entries))
		if err := b.ProcessBatch(ctx, j, j.Entries[j.Progress:end]); err != nil {
			return err
		}
	}
	return nil
}

type span struct {
	start, end int
}

type outcome struct {
	texts []string
	usage translate.Usage
	err   error
}

// runConcurrent keeps up to Concurrency batches in flight and commits their
// results strictly in order. The first failure cancels everything after it.
func (b *BatchTranslator) runConcurrent(ctx context.Context, j *Job, batchSize int) error {
	var spans []span
	for start := j.Progress; start < len(j.Entries); start += batchSize {
		spans = append(spans, span{start, min(start+batchSize, len(j.Entries))})
	}
	if len(spans) == 0 {
		return nil
	}

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)

	results := make([]chan outcome, len(spans))
	for i := range results {
		results[i] = make(chan outcome, 1)
	}

	scheduled := make(chan struct{})
	go func() {
		defer close(scheduled)
		for i, s := range spans {
			if err := gctx.Err(); err != nil {
				for _, ch := range results[i:] {
					ch <- outcome{err: err}
				}
				return
			}
			g.Go(func() error {
				texts, usage, err := b.translateBatch(gctx, j, s.start, j.Entries[s.start:s.end])
				if err != nil {
					err = batchError(s.start, s.end-s.start, err)
				}
				results[i] <- outcome{texts: texts, usage: usage, err: err}
				return err
			})
		}
	}()

	var firstErr error
	for i, s := range spans {
		out := <-results[i]
		if out.err != nil {
			firstErr = out.err
			break
		}
		if err := b.commit(j, s.start, out.texts, out.usage); err != nil {
			firstErr = err
			break
		}
	}

	cancel()
	<-scheduled
	groupErr := g.Wait()

	// an earlier batch cancelled by a later failure reports the failure
	if firstErr != nil && parent.Err() == nil && isContextErr(firstErr) &&
		groupErr != nil && !isContextErr(groupErr) {
		return groupErr
	}
	return firstErr
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// translateBatch only reads the job's entries and languages, which never
// change while the job runs, so batches can run in parallel.
func (b *BatchTranslator) translateBatch(
	ctx context.Context,
	j *Job,
	start int,
	entries []Entry,
) ([]string, translate.Usage, error) {
	prepared := prepareBatch(j, start, entries, b.opts.ContextLines)
	if len(prepared.request.Items) == 0 {
		return prepared.out, translate.Usage{}, nil
	}

	resp, err := b.translator.TranslateBatch(ctx, prepared.request)
	if err != nil {
		return nil, translate.Usage{}, err
	}

	byIndex := make(map[int]string, len(resp.Results))
	for _, r := range resp.Results {
		byIndex[r.Index] = r.Text
	}
	out := prepared.out
	for _, item := range prepared.request.Items {
		text, ok := byIndex[item.Index]
		if !ok {
			return nil, translate.Usage{}, fmt.Errorf(
				"%w: no result for entry %d", translate.ErrMalformedResponse, item.Index+1,
			)
		}
		i := item.Index - start
		out[i] = prepared.protected[i].Restore(text)
	}
	return out, resp.Usage, nil
}

type preparedBatch struct {
	request   translate.Request
	protected []subtitle.Protected
	// out holds the original text of lines that are not sent
	out []string
}

// prepareBatch protects styled text and builds the provider request. Item
// indices are absolute entry positions.
func prepareBatch(j *Job, start int, entries []Entry, contextLines int) preparedBatch {
	p := preparedBatch{
		protected: make([]subtitle.Protected, len(entries)),
		out:       make([]string, len(entries)),
	}
	items := make([]translate.TranslationItem, 0, len(entries))
	for i, e := range entries {
		prot := subtitle.Protect(e.Text, e.Style)
		p.protected[i] = prot
		if prot.Skip || strings.TrimSpace(prot.Text) == "" {
			p.out[i] = e.Text
			continue
		}
		items = append(items, translate.TranslationItem{Index: start + i, Text: prot.Text})
	}

	p.request = translate.Request{
		Items:          items,
		Context:        precedingLines(j.Entries, start, contextLines),
		TargetLanguage: language.DisplayName(j.TargetLanguage),
	}
	if j.SourceLanguage != "" {
		p.request.SourceLanguage = language.DisplayName(j.SourceLanguage)
	}
	return p
}

// Requests returns the provider requests a run of the job would send from
// its marker on. Batches with nothing to translate are left out.
func Requests(j *Job, batchSize, contextLines int) []translate.Request {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	var reqs []translate.Request
	for start := j.Progress; start < len(j.Entries); start += batchSize {
		end := min(start+batchSize, len(j.Entries))
		p := prepareBatch(j, start, j.Entries[start:end], contextLines)
		if len(p.request.Items) > 0 {
			reqs = append(reqs, p.request)
		}
	}
	return reqs
}

// precedingLines returns the source text of up to n entries before start,
// with override tags stripped.
func precedingLines(entries []Entry, start, n int) []string {
	if n <= 0 {
		return nil
	}
	from := max(0, start-n)
	var lines []string
	for _, e := range entries[from:start] {
		p := subtitle.Protect(e.Text, e.Style)
		if p.Skip {
			continue
		}
		if text := strings.TrimSpace(p.Text); text != "" {
			lines = append(lines, text)
		}
	}
	return lines
}

func (b *BatchTranslator) checkBatch(j *Job, entries []Entry) error {
	start := j.Progress
	if start+len(entries) > len(j.Entries) {
		return fmt.Errorf("%w: %d entries past marker %d of %d",
			ErrOutOfOrder, len(entries), start, len(j.Entries))
	}
	for i, e := range entries {
		if e != j.Entries[start+i] {
			return fmt.Errorf("%w: entry %d does not match position %d",
				ErrOutOfOrder, e.Index, start+i+1)
		}
	}
	return nil
}

func (b *BatchTranslator) commit(j *Job, start int, texts []string, usage translate.Usage) error {
	if start != j.Progress || len(texts) == 0 {
		return fmt.Errorf("%w: commit at %d, marker at %d", ErrOutOfOrder, start, j.Progress)
	}

	prevUsage := j.Usage
	j.Translations = append(j.Translations, texts...)
	j.Progress += len(texts)
	j.Usage = j.Usage.Add(usage)

	if err := b.save(j); err != nil {
		// roll back so the in-memory job matches what is on disk
		j.Translations = j.Translations[:start]
		j.Progress = start
		j.Usage = prevUsage
		return err
	}

	b.logger.Debugw("batch committed",
		"job", j.ID,
		"entries", fmt.Sprintf("%d-%d", start+1, j.Progress),
		"progress", fmt.Sprintf("%.1f%%", j.Percent()),
	)
	if b.opts.OnProgress != nil {
		b.opts.OnProgress(j.Progress, len(j.Entries), j.Usage)
	}
	return nil
}

// stop records why the job halted. The marker is left where it was.
func (b *BatchTranslator) stop(j *Job, err error) error {
	if isContextErr(err) {
		j.Status = StatusCancelled
	} else {
		j.Status = StatusFailed
	}
	j.LastError = err.Error()
	if saveErr := b.save(j); saveErr != nil {
		b.logger.Warnw("failed to save job state", "job", j.ID, "error", saveErr)
	}
	b.logger.Warnw("translation stopped",
		"job", j.ID,
		"status", j.Status,
		"progress", j.Progress,
		"error", err,
	)
	return err
}

func (b *BatchTranslator) save(j *Job) error {
	if b.store == nil {
		return nil
	}
	return b.store.Save(j)
}

func batchError(start, n int, err error) error {
	return fmt.Errorf("batch %d-%d: %w", start+1, start+n, err)
}
