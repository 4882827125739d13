package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softgate/rce-dispatcher/errs"
	"github.com/softgate/rce-dispatcher/models"
)

func TestLookupKnownLanguage(t *testing.T) {
	r := Default()

	spec, err := r.Lookup("python")
	require.NoError(t, err)
	assert.Equal(t, "python:3.9-alpine", spec.Image)
	assert.Equal(t, ".py", spec.Extension)
	assert.Equal(t, []string{"python3"}, spec.Executor)
}

func TestLookupUnknownLanguage(t *testing.T) {
	r := Default()

	_, err := r.Lookup("brainfuck")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrUnsupportedLanguage))
	assert.Contains(t, err.Error(), "brainfuck")
}

func TestSupportedIsSortedAndComplete(t *testing.T) {
	r := Default()

	assert.Equal(t, []string{"bash", "go", "javascript", "python"}, r.Supported())
}

func TestNewCopiesEntries(t *testing.T) {
	entries := map[string]models.LanguageSpec{}
	r := New(entries)
	entries["ruby"] = models.LanguageSpec{}

	assert.Empty(t, r.Supported())
}
