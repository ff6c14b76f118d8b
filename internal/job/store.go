package job

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	stateExt = ".json"
	lockExt  = ".lock"

	// hashChunk is read from both ends of the source when hashing.
	hashChunk = 4 << 20
)

// Store persists jobs as one JSON document per job under a directory.
type Store struct {
	dir string
	now func() time.Time
}

func NewStore(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("job store directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create job store: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) statePath(id string) string {
	return filepath.Join(s.dir, id+stateExt)
}

func (s *Store) lockPath(id string) string {
	return filepath.Join(s.dir, id+lockExt)
}

// Save writes the job atomically and stamps UpdatedAt.
func (s *Store) Save(j *Job) error {
	if j == nil || j.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidJob)
	}
	now := s.now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now

	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job %s: %w", j.ID, err)
	}
	if err := writeFileAtomic(s.statePath(j.ID), data, 0o644); err != nil {
		return fmt.Errorf("save job %s: %w", j.ID, err)
	}
	return nil
}

func (s *Store) Load(id string) (*Job, error) {
	data, err := os.ReadFile(s.statePath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("read job %s: %w", id, err)
	}
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	if j.Translations == nil {
		j.Translations = []string{}
	}
	return &j, nil
}

// List returns every unfinished job, most recently updated first. Unreadable
// state files are skipped.
func (s *Store) List() ([]*Job, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	var jobs []*Job
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, stateExt) {
			continue
		}
		j, err := s.Load(strings.TrimSuffix(name, stateExt))
		if err != nil {
			continue
		}
		if j.Status.Finished() {
			continue
		}
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].UpdatedAt.After(jobs[b].UpdatedAt)
	})
	return jobs, nil
}

// Delete removes the state and lock files of a job.
func (s *Store) Delete(id string) error {
	var errs []error
	for _, path := range []string{s.statePath(id), s.lockPath(id)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("delete job %s: %w", id, errors.Join(errs...))
	}
	return nil
}

// Lock takes the advisory lock for a job. It fails with ErrJobLocked when
// another process holds it.
func (s *Store) Lock(id string) (func() error, error) {
	lock := flock.New(s.lockPath(id))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock job %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobLocked, id)
	}
	return lock.Unlock, nil
}

// Resumable reports whether a stored job can continue against sourcePath:
// the source must still exist with the same hash, and the job must have
// committed entries left unfinished.
func Resumable(j *Job, sourcePath string) bool {
	if j == nil || j.Status.Finished() || j.Done() || j.Progress == 0 {
		return false
	}
	hash, err := HashFile(sourcePath)
	if err != nil {
		return false
	}
	return hash == j.SourceHash
}

// HashFile fingerprints a file from its size and the first and last few
// megabytes, which is enough to tell media files apart without reading them
// whole.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	size := info.Size()

	h := sha256.New()
	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], uint64(size))
	h.Write(sizeBuf[:])

	if _, err := io.CopyN(h, f, hashChunk); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	if size > 2*hashChunk {
		if _, err := f.Seek(-hashChunk, io.SeekEnd); err != nil {
			return "", fmt.Errorf("hash %s: %w", path, err)
		}
		if _, err := io.CopyN(h, f, hashChunk); err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("hash %s: %w", path, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".job-*.tmp")
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
	if err := tmp.Chmod(perm); err != nil {
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
