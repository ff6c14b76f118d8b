package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgpai22/subauto/internal/translate"
)

func openTemp(t *testing.T) *Library {
	t.Helper()
	lib, err := Open(filepath.Join(t.TempDir(), "subauto", "prompts.toml"), nil)
	require.NoError(t, err)
	return lib
}

func kidsPrompt() Prompt {
	return Prompt{
		Name:        "Kids",
		Description: "For young viewers",
		Rules:       "1. Use simple {target_lang} words.\n\n- Avoid slang.\n",
	}
}

func TestOpenMissingFileHasBuiltins(t *testing.T) {
	lib := openTemp(t)

	names := []string{}
	for _, p := range lib.List() {
		names = append(names, p.Name)
		assert.True(t, p.Locked)
		assert.NoError(t, p.Validate())
	}
	assert.Equal(t, []string{"anime", "formal", "standard"}, names)
	assert.Equal(t, "standard", lib.Active().Name)
	assert.NoFileExists(t, lib.Path(), "nothing is written until a change")
}

func TestRuleListDropsMarkersAndBlanks(t *testing.T) {
	assert.Equal(t,
		[]string{"Use simple {target_lang} words.", "Avoid slang."},
		kidsPrompt().RuleList(),
	)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		p    Prompt
		want string
	}{
		{"empty rules", Prompt{Name: "x", Rules: " \n "}, "no rules"},
		{"bad name", Prompt{Name: "two words", Rules: "Be nice."}, "name"},
		{"too long", Prompt{Name: "x", Rules: strings.Repeat("a", MaxLength+1)}, "exceed"},
		{"placeholder", Prompt{Name: "x", Rules: "Translate {lines} well."}, "{lines}"},
		{"forbidden", Prompt{Name: "x", Rules: "eval(this)"}, "forbidden"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.NoError(t, kidsPrompt().Validate())
}

func TestSaveUseAndReopen(t *testing.T) {
	lib := openTemp(t)
	require.NoError(t, lib.Save(kidsPrompt()))
	require.NoError(t, lib.Use("KIDS"))

	reopened, err := Open(lib.Path(), nil)
	require.NoError(t, err)
	assert.Equal(t, "kids", reopened.ActiveName())

	active := reopened.Active()
	assert.Equal(t, "kids", active.Name)
	assert.Equal(t, "For young viewers", active.Description)
	assert.False(t, active.Locked)
	assert.Equal(t, kidsPrompt().RuleList(), active.RuleList())

	resolved, err := reopened.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "kids", resolved.Name)
	resolved, err = reopened.Resolve("anime")
	require.NoError(t, err)
	assert.Equal(t, translate.PresetRules(translate.PresetAnime), resolved.RuleList())
}

func TestSaveKeepsCreatedAt(t *testing.T) {
	lib := openTemp(t)
	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	lib.now = func() time.Time { return first }
	require.NoError(t, lib.Save(kidsPrompt()))

	lib.now = func() time.Time { return first.Add(time.Hour) }
	updated := kidsPrompt()
	updated.Rules = "Short sentences."
	require.NoError(t, lib.Save(updated))

	p, err := lib.Get("kids")
	require.NoError(t, err)
	assert.Equal(t, first, p.CreatedAt)
	assert.Equal(t, first.Add(time.Hour), p.UpdatedAt)
	assert.Equal(t, "Short sentences.", p.Rules)
}

func TestBuiltinsAreReadOnly(t *testing.T) {
	lib := openTemp(t)
	assert.ErrorIs(t, lib.Save(Prompt{Name: "Anime", Rules: "Anything."}), ErrLocked)
	assert.ErrorIs(t, lib.Delete("formal"), ErrLocked)
	assert.ErrorIs(t, lib.Delete("nope"), ErrNotFound)
}

func TestSaveRejectsInvalidPrompt(t *testing.T) {
	lib := openTemp(t)
	err := lib.Save(Prompt{Name: "bad", Rules: "Use {lines}."})
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = lib.Get("bad")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteActiveFallsBackToStandard(t *testing.T) {
	lib := openTemp(t)
	require.NoError(t, lib.Save(kidsPrompt()))
	require.NoError(t, lib.Use("kids"))
	require.NoError(t, lib.Delete("kids"))

	assert.Equal(t, "standard", lib.ActiveName())
	reopened, err := Open(lib.Path(), nil)
	require.NoError(t, err)
	_, err = reopened.Get("kids")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDuplicate(t *testing.T) {
	lib := openTemp(t)
	require.NoError(t, lib.Duplicate("anime", "my-anime"))

	p, err := lib.Get("my-anime")
	require.NoError(t, err)
	assert.False(t, p.Locked)
	assert.Equal(t, "Copy of anime", p.Description)
	assert.Equal(t, translate.PresetRules(translate.PresetAnime), p.RuleList())

	assert.ErrorIs(t, lib.Duplicate("anime", "my-anime"), ErrExists)
	assert.ErrorIs(t, lib.Duplicate("missing", "other"), ErrNotFound)
}

func TestInvalidActiveFallsBackToStandard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.toml")
	content := `active = "broken"

[[prompt]]
name = "broken"
rules = "Use {lines} here."
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	lib, err := Open(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "standard", lib.Active().Name)

	_, err = lib.Resolve("broken")
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Error(t, lib.Use("broken"))

	_, err = lib.Resolve("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResetDefaultsRestoresEditedBuiltins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.toml")
	content := `active = "formal"

[[prompt]]
name = "formal"
rules = "Be rude."

[[prompt]]
name = "kids"
rules = "Keep it simple."
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	lib, err := Open(path, nil)
	require.NoError(t, err)
	p, err := lib.Get("formal")
	require.NoError(t, err)
	assert.True(t, p.Locked)
	assert.Equal(t, "Be rude.", p.Rules)

	require.NoError(t, lib.ResetDefaults())

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	p, err = reopened.Get("formal")
	require.NoError(t, err)
	assert.Equal(t, translate.PresetRules(translate.PresetFormal), p.RuleList())
	assert.Equal(t, "formal", reopened.ActiveName())
	_, err = reopened.Get("kids")
	assert.NoError(t, err, "saved prompts survive a reset")
}

func TestCorruptFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.toml")
	require.NoError(t, os.WriteFile(path, []byte("active = [unclosed"), 0o644))
	_, err := Open(path, nil)
	assert.Error(t, err)
}

func TestBuiltinLibraryCannotSave(t *testing.T) {
	lib := Builtin(nil)
	assert.Equal(t, "standard", lib.Active().Name)
	assert.Error(t, lib.Save(kidsPrompt()))
	_, err := lib.Get("kids")
	assert.ErrorIs(t, err, ErrNotFound)
}
