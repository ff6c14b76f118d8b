package prompts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/mgpai22/subauto/internal/logging"
	"github.com/mgpai22/subauto/internal/translate"
)

// document is the on-disk layout of the library file.
type document struct {
	Active  string   `toml:"active"`
	Prompts []Prompt `toml:"prompt"`
}

// Library is the set of known prompts and which one is active. Every
// change is written back to the file right away.
type Library struct {
	path    string
	active  string
	prompts map[string]Prompt
	now     func() time.Time
	logger  *logging.Logger
}

// Open reads the library at path. A missing file yields the built-in
// presets with standard active; the file is created on the first change.
func Open(path string, logger *logging.Logger) (*Library, error) {
	l := newLibrary(path, logger)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		l.logger.Debugw("no prompt library yet", "path", path)
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read prompt library: %w", err)
	}

	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse prompt library %s: %w", path, err)
	}
	for _, p := range doc.Prompts {
		p.Name = NormalizeName(p.Name)
		if isBuiltin(p.Name) {
			p.Locked = true
		}
		l.prompts[p.Name] = p
	}
	if doc.Active != "" {
		l.active = NormalizeName(doc.Active)
	}
	l.logger.Debugw("loaded prompt library", "path", path, "prompts", len(l.prompts))
	return l, nil
}

// Builtin returns a library holding only the built-in presets. It cannot
// be saved.
func Builtin(logger *logging.Logger) *Library {
	return newLibrary("", logger)
}

func newLibrary(path string, logger *logging.Logger) *Library {
	l := &Library{
		path:    path,
		active:  string(translate.PresetStandard),
		prompts: map[string]Prompt{},
		now:     time.Now,
		logger:  logging.OrNop(logger).Named("prompts"),
	}
	for _, p := range Builtins(l.now()) {
		l.prompts[p.Name] = p
	}
	return l
}

func (l *Library) Path() string {
	return l.path
}

// ActiveName is the stored selection, which may no longer be usable.
func (l *Library) ActiveName() string {
	return l.active
}

// List returns the built-in prompts first, then the rest by name.
func (l *Library) List() []Prompt {
	out := make([]Prompt, 0, len(l.prompts))
	for _, p := range l.prompts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Locked != out[j].Locked {
			return out[i].Locked
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (l *Library) Get(name string) (Prompt, error) {
	p, ok := l.prompts[NormalizeName(name)]
	if !ok {
		return Prompt{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return p, nil
}

// Active returns the selected prompt. A missing or invalid selection
// falls back to standard.
func (l *Library) Active() Prompt {
	p, ok := l.prompts[l.active]
	if !ok {
		l.logger.Warnw("active prompt not found, using standard", "prompt", l.active)
		return l.standard()
	}
	if err := p.Validate(); err != nil {
		l.logger.Warnw("active prompt is invalid, using standard", "prompt", p.Name, "error", err)
		return l.standard()
	}
	return p
}

// standard survives hand edits of the file: a broken copy is replaced by
// the shipped rules.
func (l *Library) standard() Prompt {
	if p, ok := l.prompts[string(translate.PresetStandard)]; ok && p.Validate() == nil {
		return p
	}
	return builtin(translate.PresetStandard, l.now())
}

// Resolve picks the prompt for a run. An empty name means the active
// prompt; a named prompt must exist and be valid.
func (l *Library) Resolve(name string) (Prompt, error) {
	if NormalizeName(name) == "" {
		return l.Active(), nil
	}
	p, err := l.Get(name)
	if err != nil {
		return Prompt{}, fmt.Errorf("unknown prompt preset: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Prompt{}, err
	}
	return p, nil
}

// Save adds a prompt or replaces a saved one. Built-in prompts are
// read-only.
func (l *Library) Save(p Prompt) error {
	p.Name = NormalizeName(p.Name)
	if isBuiltin(p.Name) {
		return fmt.Errorf("%w: %s", ErrLocked, p.Name)
	}
	p.Locked = false
	if err := p.Validate(); err != nil {
		return err
	}

	now := l.now()
	p.UpdatedAt = now
	if existing, ok := l.prompts[p.Name]; ok && !existing.CreatedAt.IsZero() {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
	}

	prev, had := l.prompts[p.Name]
	l.prompts[p.Name] = p
	if err := l.write(); err != nil {
		if had {
			l.prompts[p.Name] = prev
		} else {
			delete(l.prompts, p.Name)
		}
		return err
	}
	l.logger.Infow("saved prompt", "prompt", p.Name)
	return nil
}

// Delete removes a saved prompt. Deleting the active prompt makes standard
// active again.
func (l *Library) Delete(name string) error {
	p, err := l.Get(name)
	if err != nil {
		return err
	}
	if p.Locked {
		return fmt.Errorf("%w: %s", ErrLocked, p.Name)
	}

	prevActive := l.active
	delete(l.prompts, p.Name)
	if l.active == p.Name {
		l.active = string(translate.PresetStandard)
	}
	if err := l.write(); err != nil {
		l.prompts[p.Name] = p
		l.active = prevActive
		return err
	}
	l.logger.Infow("deleted prompt", "prompt", p.Name)
	return nil
}

// Use makes a valid prompt the active one.
func (l *Library) Use(name string) error {
	p, err := l.Get(name)
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("cannot activate: %w", err)
	}

	prev := l.active
	l.active = p.Name
	if err := l.write(); err != nil {
		l.active = prev
		return err
	}
	l.logger.Infow("active prompt changed", "prompt", p.Name)
	return nil
}

// Duplicate copies a prompt under a new name. Copies are never locked.
func (l *Library) Duplicate(source, name string) error {
	src, err := l.Get(source)
	if err != nil {
		return err
	}
	if _, err := l.Get(name); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, NormalizeName(name))
	}
	return l.Save(Prompt{
		Name:        name,
		Description: "Copy of " + src.Name,
		Rules:       src.Rules,
	})
}

// ResetDefaults restores the built-in prompts. Saved prompts and the
// active selection are kept.
func (l *Library) ResetDefaults() error {
	prev := make(map[string]Prompt)
	for _, p := range Builtins(l.now()) {
		if existing, ok := l.prompts[p.Name]; ok {
			prev[p.Name] = existing
			p.CreatedAt = existing.CreatedAt
		}
		l.prompts[p.Name] = p
	}
	if err := l.write(); err != nil {
		for name, p := range prev {
			l.prompts[name] = p
		}
		return err
	}
	l.logger.Infow("built-in prompts reset")
	return nil
}

func (l *Library) write() error {
	if l.path == "" {
		return errors.New("prompt library has no file")
	}
	data, err := toml.Marshal(document{Active: l.active, Prompts: l.List()})
	if err != nil {
		return fmt.Errorf("encode prompt library: %w", err)
	}
	if err := writeFileAtomic(l.path, data); err != nil {
		return fmt.Errorf("save prompt library: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".prompts-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
