package job

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mgpai22/subauto/internal/language"
	"github.com/mgpai22/subauto/internal/subtitle"
	"github.com/mgpai22/subauto/internal/translate"
)

var (
	ErrInvalidJob  = errors.New("invalid job")
	ErrOutOfOrder  = errors.New("batch does not start at the progress marker")
	ErrJobNotFound = errors.New("job not found")
	ErrJobLocked   = errors.New("job is being processed by another process")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusTranslated Status = "translated"
	StatusMuxed      Status = "muxed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Finished reports whether every entry has been translated.
func (s Status) Finished() bool {
	return s == StatusTranslated || s == StatusMuxed
}

// Entry is one subtitle line. Timings are carried through untouched.
type Entry struct {
	Index int           `json:"index"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
	Style string        `json:"style,omitempty"`
}

// Job is a resumable translation of one subtitle track. Progress counts the
// committed prefix of Entries and always equals len(Translations).
type Job struct {
	ID             string `json:"id"`
	SourcePath     string `json:"source_path"`
	SourceHash     string `json:"source_hash"`
	TrackID        int    `json:"track_id"`
	SubtitlePath   string `json:"subtitle_path"`
	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language"`
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	Preset         string `json:"preset,omitempty"`
	BatchSize      int    `json:"batch_size"`

	Entries      []Entry  `json:"entries"`
	Translations []string `json:"translations"`
	Progress     int      `json:"progress"`

	Usage     translate.Usage `json:"usage"`
	Status    Status          `json:"status"`
	LastError string          `json:"last_error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// MakeID derives the job id from the source hash, the track and the target
// language, so the same request always maps to the same job.
func MakeID(sourceHash string, trackID int, targetLanguage string) string {
	key := fmt.Sprintf("%s|%d|%s", sourceHash, trackID, language.ToISO3(targetLanguage))
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

// EntriesFromSubtitle converts parsed subtitle entries.
func EntriesFromSubtitle(entries []subtitle.Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = Entry{
			Index: e.Index,
			Start: e.StartTime,
			End:   e.EndTime,
			Text:  e.Text,
			Style: e.Style,
		}
	}
	return out
}

// Validate checks the preconditions for translating the job.
func (j *Job) Validate() error {
	var problems []string
	if len(j.Entries) == 0 {
		problems = append(problems, "no entries")
	}
	if strings.TrimSpace(j.Provider) == "" {
		problems = append(problems, "no provider")
	}
	if strings.TrimSpace(j.Model) == "" {
		problems = append(problems, "no model")
	}
	if strings.TrimSpace(j.TargetLanguage) == "" {
		problems = append(problems, "no target language")
	}
	if j.Progress < 0 || j.Progress > len(j.Entries) {
		problems = append(problems, fmt.Sprintf("progress %d out of range", j.Progress))
	}
	if len(j.Translations) != j.Progress {
		problems = append(problems, fmt.Sprintf(
			"%d translations for progress %d", len(j.Translations), j.Progress,
		))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidJob, strings.Join(problems, ", "))
	}
	return nil
}

// Done reports whether the marker reached the end of the entries.
func (j *Job) Done() bool {
	return len(j.Entries) > 0 && j.Progress >= len(j.Entries)
}

func (j *Job) Remaining() int {
	return len(j.Entries) - j.Progress
}

// Percent is the committed share of entries, 0 to 100.
func (j *Job) Percent() float64 {
	if len(j.Entries) == 0 {
		return 0
	}
	return float64(j.Progress) * 100 / float64(len(j.Entries))
}
