package job

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeID(t *testing.T) {
	a := MakeID("abc", 2, "id")
	assert.Len(t, a, 16)
	assert.Equal(t, a, MakeID("abc", 2, "ind"), "language codes are normalised")
	assert.NotEqual(t, a, MakeID("abc", 3, "id"))
	assert.NotEqual(t, a, MakeID("abc", 2, "en"))
	assert.NotEqual(t, a, MakeID("abd", 2, "id"))
}

func TestStoreSaveLoad(t *testing.T) {
	store := newTestStore(t)
	j := newTestJob(3)
	j.Translations = []string{"satu"}
	j.Progress = 1

	require.NoError(t, store.Save(j))
	assert.False(t, j.CreatedAt.IsZero())

	loaded, err := store.Load(j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.Entries, loaded.Entries)
	assert.Equal(t, []string{"satu"}, loaded.Translations)
	assert.Equal(t, 1, loaded.Progress)
	assert.Equal(t, time.Second+800*time.Millisecond, loaded.Entries[1].End)

	matches, err := filepath.Glob(filepath.Join(store.Dir(), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temp files are cleaned up")
}

func TestStoreLoadMissing(t *testing.T) {
	_, err := newTestStore(t).Load("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestStoreListSkipsFinishedAndCorrupt(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	store.now = func() time.Time { clock = clock.Add(time.Minute); return clock }

	older := newTestJob(2)
	older.ID = "older"
	older.Status = StatusFailed
	newer := newTestJob(2)
	newer.ID = "newer"
	newer.Status = StatusCancelled
	done := newTestJob(2)
	done.ID = "done"
	done.Status = StatusTranslated

	for _, j := range []*Job{older, newer, done} {
		require.NoError(t, store.Save(j))
	}
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "broken.json"), []byte("{"), 0o644))

	jobs, err := store.List()
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "newer", jobs[0].ID)
	assert.Equal(t, "older", jobs[1].ID)
}

func TestStoreDelete(t *testing.T) {
	store := newTestStore(t)
	j := newTestJob(1)
	require.NoError(t, store.Save(j))
	unlock, err := store.Lock(j.ID)
	require.NoError(t, err)
	require.NoError(t, unlock())

	require.NoError(t, store.Delete(j.ID))
	_, err = store.Load(j.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.NoFileExists(t, filepath.Join(store.Dir(), j.ID+".lock"))

	assert.NoError(t, store.Delete(j.ID), "deleting twice is fine")
}

func TestStoreLockIsExclusive(t *testing.T) {
	store := newTestStore(t)

	unlock, err := store.Lock("job")
	require.NoError(t, err)

	_, err = store.Lock("job")
	assert.ErrorIs(t, err, ErrJobLocked)

	require.NoError(t, unlock())
	unlock, err = store.Lock("job")
	require.NoError(t, err)
	require.NoError(t, unlock())
}

func TestResumable(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "movie.mkv")
	require.NoError(t, os.WriteFile(source, []byte("matroska bytes"), 0o644))
	hash, err := HashFile(source)
	require.NoError(t, err)

	j := newTestJob(4)
	j.SourceHash = hash
	j.Translations = []string{"a", "b"}
	j.Progress = 2
	j.Status = StatusFailed
	assert.True(t, Resumable(j, source))

	assert.False(t, Resumable(j, filepath.Join(dir, "gone.mkv")), "missing source")

	fresh := newTestJob(4)
	fresh.SourceHash = hash
	assert.False(t, Resumable(fresh, source), "nothing committed yet")

	finished := newTestJob(1)
	finished.SourceHash = hash
	finished.Translations = []string{"a"}
	finished.Progress = 1
	finished.Status = StatusTranslated
	assert.False(t, Resumable(finished, source))

	require.NoError(t, os.WriteFile(source, []byte("re-encoded bytes"), 0o644))
	assert.False(t, Resumable(j, source), "source changed")
}

func TestHashFileLargeFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "b.bin")

	data := make([]byte, 3*hashChunk)
	require.NoError(t, os.WriteFile(a, data, 0o644))
	data[len(data)-1] = 1
	require.NoError(t, os.WriteFile(b, data, 0o644))

	ha, err := HashFile(a)
	require.NoError(t, err)
	hb, err := HashFile(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb, "tail bytes are part of the hash")
}

func TestJobPercent(t *testing.T) {
	j := newTestJob(4)
	j.Translations = []string{"a"}
	j.Progress = 1
	assert.InDelta(t, 25.0, j.Percent(), 0.001)
	assert.Equal(t, 3, j.Remaining())
	assert.False(t, j.Done())
}
