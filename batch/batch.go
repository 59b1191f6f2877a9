// Package batch is the batch-download bookkeeping service: a worker holds the list of
// parts selected for download and hands them out one at a time to the controller.
package batch

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Entry is one part of a batch.
type Entry struct {
	ID    string `json:"id,omitempty"`
	Index int    `json:"index"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Manifest is what the controller hands to Init.
type Manifest struct {
	VideoTitle string  `json:"videoTitle"`
	Entries    []Entry `json:"ret"`
}

// Worker is served through a worker.Endpoint; its exported methods are the
// batch service's wire surface.
type Worker struct {
	log *zap.Logger

	mu      sync.Mutex
	title   string
	entries []Entry
}

func NewWorker(log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{log: log}
}

// Init replaces the batch. Entries get their position as Index and a fresh ID
// when they arrive without one.
func (w *Worker) Init(m Manifest) error {
	entries := make([]Entry, len(m.Entries))
	for i, e := range m.Entries {
		e.Index = i
		if e.ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("assign id to entry %d: %w", i, err)
			}
			e.ID = id.String()
		}
		entries[i] = e
	}

	w.mu.Lock()
	w.title = m.VideoTitle
	w.entries = entries
	w.mu.Unlock()

	w.log.Info("batch initialized", zap.String("title", m.VideoTitle), zap.Int("entries", len(entries)))
	return nil
}

// GetInfo returns the entry at index.
func (w *Worker) GetInfo(index int) (*Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if index < 0 || index >= len(w.entries) {
		return nil, fmt.Errorf("index %d out of range [0, %d)", index, len(w.entries))
	}
	e := w.entries[index]
	return &e, nil
}

func (w *Worker) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

func (w *Worker) Title() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.title
}
