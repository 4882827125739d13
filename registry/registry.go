// Package registry implements the language registry: a read-only mapping
// from language identifier to its LanguageSpec, initialized at process
// start and never mutated thereafter. Grounded on
// original_source/backend/execution-worker/docker_provider.go's
// languageMap/IsLanguageSupported/GetSupportedLanguages.
package registry

import (
	"fmt"
	"sort"
	"time"

	"github.com/softgate/rce-dispatcher/errs"
	"github.com/softgate/rce-dispatcher/models"
)

// Registry is a read-only language table.
type Registry struct {
	entries map[string]models.LanguageSpec
}

// Default returns the registry this implementation ships with, extending
// the original Docker provider's python/javascript pair with go and bash
// support (SPEC_FULL.md §4.1).
func Default() *Registry {
	return New(map[string]models.LanguageSpec{
		"python": {
			Image:     "python:3.9-alpine",
			Extension: ".py",
			Executor:  []string{"python3"},
			Timeout:   5 * time.Second,
		},
		"javascript": {
			Image:     "node:18-alpine",
			Extension: ".js",
			Executor:  []string{"node"},
			Timeout:   5 * time.Second,
		},
		"go": {
			Image:     "golang:1.21-alpine",
			Extension: ".go",
			Executor:  []string{"go", "run"},
			Timeout:   10 * time.Second,
		},
		"bash": {
			Image:     "bash:5.2-alpine",
			Extension: ".sh",
			Executor:  []string{"bash"},
			Timeout:   5 * time.Second,
		},
	})
}

// New builds a registry from an explicit entry set. Exposed separately from
// Default so operators can override image tags (e.g. via a config-loaded
// table) without forking the package.
func New(entries map[string]models.LanguageSpec) *Registry {
	copied := make(map[string]models.LanguageSpec, len(entries))
	for k, v := range entries {
		copied[k] = v
	}
	return &Registry{entries: copied}
}

// Lookup returns the LanguageSpec for language, or ErrUnsupportedLanguage
// if it isn't registered.
func (r *Registry) Lookup(language string) (models.LanguageSpec, error) {
	spec, ok := r.entries[language]
	if !ok {
		return models.LanguageSpec{}, fmt.Errorf("%w: %s", errs.ErrUnsupportedLanguage, language)
	}
	return spec, nil
}

// Supported returns the sorted set of registered language identifiers.
func (r *Registry) Supported() []string {
	out := make([]string, 0, len(r.entries))
	for lang := range r.entries {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}
