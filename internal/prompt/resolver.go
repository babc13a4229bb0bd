// Package prompt loads system-prompt variants from markdown files.
package prompt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"cottbot/internal/logging"
)

// ErrVariantNotFound is returned when neither the requested variant nor the
// default variant can be loaded.
var ErrVariantNotFound = errors.New("prompt variant not found")

// Variant describes a selectable personality.
type Variant struct {
	ID          string
	DisplayName string
}

// DefaultVariant is used when a user has no stored preference or the
// requested variant is unknown.
const DefaultVariant = "femboy"

// Variants is the catalog of selectable personalities.
var Variants = []Variant{
	{ID: "femboy", DisplayName: "Femboy"},
	{ID: "cat-girl", DisplayName: "Cat Girl"},
	{ID: "furry", DisplayName: "Furry"},
}

// Known reports whether id names a catalog variant.
func Known(id string) bool {
	for _, v := range Variants {
		if v.ID == id {
			return true
		}
	}
	return false
}

// DisplayName returns the human-readable name for a variant ID. Unknown IDs
// get the default variant's name.
func DisplayName(id string) string {
	for _, v := range Variants {
		if v.ID == id {
			return v.DisplayName
		}
	}
	return DisplayName(DefaultVariant)
}

var headerLine = regexp.MustCompile(`(?m)^#{1,6}[ \t].*$`)

// stripHeaders removes markdown header lines so the prompt reads as plain
// instructions when sent to the model.
func stripHeaders(content string) string {
	stripped := headerLine.ReplaceAllString(content, "")
	lines := strings.Split(stripped, "\n")
	var out []string
	blank := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// Resolver loads variant prompt files from a directory, caching content
// until the watcher invalidates it.
type Resolver struct {
	mu    sync.RWMutex
	dir   string
	cache map[string]string
}

// NewResolver creates a resolver reading <dir>/<variant>.md files.
func NewResolver(dir string) *Resolver {
	return &Resolver{
		dir:   dir,
		cache: make(map[string]string),
	}
}

// Resolve returns the prompt text for the given variant. Unknown variants
// and missing files fall back to the default variant; only when the default
// itself cannot be loaded does Resolve fail.
func (r *Resolver) Resolve(variant string) (string, error) {
	if !Known(variant) {
		logging.ContextDebug("Unknown prompt variant %q, using %s", variant, DefaultVariant)
		variant = DefaultVariant
	}

	text, err := r.load(variant)
	if err == nil {
		return text, nil
	}
	if variant == DefaultVariant {
		return "", fmt.Errorf("%w: %s: %v", ErrVariantNotFound, variant, err)
	}

	logging.ContextDebug("Prompt variant %s unavailable (%v), falling back to %s", variant, err, DefaultVariant)
	text, err = r.load(DefaultVariant)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrVariantNotFound, DefaultVariant, err)
	}
	return text, nil
}

// load returns cached content or reads and strips the variant file.
func (r *Resolver) load(variant string) (string, error) {
	r.mu.RLock()
	text, ok := r.cache[variant]
	r.mu.RUnlock()
	if ok {
		return text, nil
	}

	path := filepath.Join(r.dir, variant+".md")
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	text = stripHeaders(string(raw))
	r.mu.Lock()
	r.cache[variant] = text
	r.mu.Unlock()
	return text, nil
}

// Invalidate drops a cached variant so the next Resolve re-reads the file.
// An empty variant drops the entire cache.
func (r *Resolver) Invalidate(variant string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if variant == "" {
		r.cache = make(map[string]string)
		return
	}
	delete(r.cache, variant)
}
