// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Phase is the retrieval state of one category.
type Phase string

// Category phases. A category moves pending → searching → scraping → done,
// or straight to done when every search strategy failed.
const (
	PhasePending   Phase = "pending"
	PhaseSearching Phase = "searching"
	PhaseScraping  Phase = "scraping"
	PhaseDone      Phase = "done"
)

// CategoryState is the progress of one category within a run.
type CategoryState struct {
	Phase Phase `json:"phase"`

	// Engine is the engine or mirror currently in use.
	Engine string `json:"engine"`

	// Current is the title of the item currently being processed.
	Current string `json:"current"`

	// Error is set while the most recent attempt failed.
	Error bool `json:"error"`

	// Exhausted is set when nothing usable was retrieved.
	Exhausted bool `json:"exhausted"`

	// Done is the single authoritative completion flag.
	Done bool `json:"done"`

	// Sources holds the scraped sources gathered so far.
	Sources []ScrapedSource `json:"sources"`
}

// RunSnapshot is an immutable view of every category's state in one run.
// Writers replace the whole snapshot; readers never see partial updates.
type RunSnapshot struct {
	RunID      string                   `json:"run_id"`
	Order      []string                 `json:"order"`
	Categories map[string]CategoryState `json:"categories"`
}

// AllDone reports whether every category in Order is done. A snapshot with
// no categories is not complete.
func (s RunSnapshot) AllDone() bool {
	if len(s.Order) == 0 {
		return false
	}
	for _, key := range s.Order {
		if !s.Categories[key].Done {
			return false
		}
	}
	return true
}

// Flatten returns every category's sources in Order.
func (s RunSnapshot) Flatten() []ScrapedSource {
	var out []ScrapedSource
	for _, key := range s.Order {
		out = append(out, s.Categories[key].Sources...)
	}
	return out
}

// EventKind classifies a progress event.
type EventKind string

const (
	EventPhase   EventKind = "phase"
	EventEngine  EventKind = "engine"
	EventMirror  EventKind = "mirror"
	EventItem    EventKind = "item"
	EventSource  EventKind = "source"
	EventError   EventKind = "error"
	EventDone    EventKind = "done"
	EventTimeout EventKind = "timeout"
)

// ProgressEvent is one ordered progress notification for a category.
type ProgressEvent struct {
	RunID    string    `json:"run_id"`
	Category string    `json:"category"`
	Kind     EventKind `json:"kind"`
	Phase    Phase     `json:"phase"`
	Detail   string    `json:"detail,omitempty"`
	Engine   string    `json:"engine,omitempty"`
	Time     time.Time `json:"time"`
}
