package domain

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"
)

// Card represents a single kanban item placed in exactly one column.
type Card struct {
	ID       string `json:"id"`
	ColumnID string `json:"columnId"`
	Title    string `json:"title"`
}

// Step represents an ordered roadmap item. The step number is its position
// in the sequence and is never stored.
type Step struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Board is the typed working copy of a project's document.
type Board struct {
	Cards []Card `json:"cards"`
	Steps []Step `json:"steps"`
}

// Document is the persisted form of a board. Both collections are kept as
// opaque JSON so unknown properties survive a round trip.
type Document struct {
	Cards     json.RawMessage `json:"cards"`
	Steps     json.RawMessage `json:"steps"`
	UpdatedAt time.Time       `json:"-"`
}

var emptyArray = json.RawMessage("[]")

// EmptyDocument is returned for projects that were never written.
func EmptyDocument() Document {
	return Document{Cards: cloneRaw(emptyArray), Steps: cloneRaw(emptyArray)}
}

// Normalize replaces absent or null collections with empty arrays.
func (d Document) Normalize() Document {
	d.Cards = orEmpty(d.Cards)
	d.Steps = orEmpty(d.Steps)
	return d
}

// Decode converts the stored document into typed cards and steps. Unknown
// properties are dropped.
func (d Document) Decode() (Board, error) {
	d = d.Normalize()
	b := Board{Cards: []Card{}, Steps: []Step{}}
	if err := sonic.Unmarshal(d.Cards, &b.Cards); err != nil {
		return Board{}, err
	}
	if err := sonic.Unmarshal(d.Steps, &b.Steps); err != nil {
		return Board{}, err
	}
	if b.Cards == nil {
		b.Cards = []Card{}
	}
	if b.Steps == nil {
		b.Steps = []Step{}
	}
	return b, nil
}

// Encode converts a typed board into its stored form.
func (b Board) Encode() (Document, error) {
	cards := b.Cards
	if cards == nil {
		cards = []Card{}
	}
	steps := b.Steps
	if steps == nil {
		steps = []Step{}
	}
	c, err := sonic.Marshal(cards)
	if err != nil {
		return Document{}, err
	}
	s, err := sonic.Marshal(steps)
	if err != nil {
		return Document{}, err
	}
	return Document{Cards: c, Steps: s}, nil
}

// Clone returns a deep copy whose slices can be mutated independently.
func (b Board) Clone() Board {
	out := Board{
		Cards: make([]Card, len(b.Cards)),
		Steps: make([]Step, len(b.Steps)),
	}
	copy(out.Cards, b.Cards)
	copy(out.Steps, b.Steps)
	return out
}

// StepNumber is the 1-based roadmap number displayed for the step at index.
func StepNumber(index int) int {
	return index + 1
}

func orEmpty(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return cloneRaw(emptyArray)
	}
	return raw
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
