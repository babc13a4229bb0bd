package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cottbot/internal/logging"
)

const saveDebounce = 5 * time.Second

// TokenCounts holds prompt/completion sums plus estimated cost.
type TokenCounts struct {
	Prompt     int64   `json:"prompt"`
	Completion int64   `json:"completion"`
	Total      int64   `json:"total"`
	Cost       float64 `json:"cost_usd"`
}

func (tc *TokenCounts) add(prompt, completion int, cost float64) {
	tc.Prompt += int64(prompt)
	tc.Completion += int64(completion)
	tc.Total += int64(prompt + completion)
	tc.Cost += cost
}

// AggregatedStats breaks usage down by model and by user.
type AggregatedStats struct {
	Total   TokenCounts            `json:"total"`
	ByModel map[string]TokenCounts `json:"by_model"`
	ByUser  map[string]TokenCounts `json:"by_user"`
}

// trackerData is the persisted root structure.
type trackerData struct {
	Version   string          `json:"version"`
	Aggregate AggregatedStats `json:"aggregate"`
}

// Tracker aggregates usage across runs and persists it as JSON with a
// debounced auto-save.
type Tracker struct {
	mu       sync.Mutex
	data     trackerData
	filePath string
	dirty    bool
}

// NewTracker creates a tracker persisting under dataDir/usage.json, loading
// any existing data. A corrupt file is discarded with a log entry.
func NewTracker(dataDir string) (*Tracker, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	t := &Tracker{
		filePath: filepath.Join(dataDir, "usage.json"),
		data: trackerData{
			Version: "1.0",
			Aggregate: AggregatedStats{
				ByModel: make(map[string]TokenCounts),
				ByUser:  make(map[string]TokenCounts),
			},
		},
	}

	if err := t.load(); err != nil {
		logging.Usage("Discarding unreadable usage file %s: %v", t.filePath, err)
	}
	return t, nil
}

func (t *Tracker) load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	raw, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &t.data); err != nil {
		return err
	}

	if t.data.Aggregate.ByModel == nil {
		t.data.Aggregate.ByModel = make(map[string]TokenCounts)
	}
	if t.data.Aggregate.ByUser == nil {
		t.data.Aggregate.ByUser = make(map[string]TokenCounts)
	}
	return nil
}

// Save writes the usage data to disk immediately.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked()
}

func (t *Tracker) saveLocked() error {
	raw, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	t.dirty = false
	return os.WriteFile(t.filePath, raw, 0644)
}

// Record folds one run's snapshot into the aggregates and schedules a
// debounced save.
func (t *Tracker) Record(userID, model string, snap Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.Aggregate.Total.add(snap.PromptTokens, snap.CompletionTokens, snap.Cost)
	addToMap(t.data.Aggregate.ByModel, model, snap)
	addToMap(t.data.Aggregate.ByUser, userID, snap)

	if !t.dirty {
		t.dirty = true
		time.AfterFunc(saveDebounce, func() {
			if err := t.Save(); err != nil {
				logging.Usage("Auto-save failed: %v", err)
			}
		})
	}
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() AggregatedStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := t.data.Aggregate
	stats.ByModel = copyCounts(stats.ByModel)
	stats.ByUser = copyCounts(stats.ByUser)
	return stats
}

func addToMap(m map[string]TokenCounts, key string, snap Snapshot) {
	entry := m[key]
	entry.add(snap.PromptTokens, snap.CompletionTokens, snap.Cost)
	m[key] = entry
}

func copyCounts(src map[string]TokenCounts) map[string]TokenCounts {
	dst := make(map[string]TokenCounts, len(src))
	for key, counts := range src {
		dst[key] = counts
	}
	return dst
}
