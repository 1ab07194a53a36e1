package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
)

func TestStepMarshalIncludesCompleted(t *testing.T) {
	payload, err := sonic.Marshal(Step{ID: "s1", Title: "Design"})
	if err != nil {
		t.Fatalf("marshal step: %v", err)
	}
	if !strings.Contains(string(payload), `"completed":false`) {
		t.Fatalf("expected completed field to be present, got %s", payload)
	}
}

func TestDocumentNormalize(t *testing.T) {
	tests := []struct {
		name  string
		cards string
	}{
		{name: "absent", cards: ""},
		{name: "null", cards: "null"},
		{name: "padded null", cards: "  null "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Document{Cards: []byte(tt.cards), Steps: []byte(`[{"id":"s1"}]`)}.Normalize()
			if string(doc.Cards) != "[]" {
				t.Fatalf("cards = %s, want []", doc.Cards)
			}
			if string(doc.Steps) != `[{"id":"s1"}]` {
				t.Fatalf("steps changed: %s", doc.Steps)
			}
		})
	}
}

func TestDocumentDecodeKeepsOrder(t *testing.T) {
	doc := Document{
		Cards: []byte(`[{"id":"c2","columnId":"done","title":"B","extra":1},{"id":"c1","columnId":"plans","title":"A"}]`),
		Steps: []byte(`[{"id":"s1","title":"one"},{"id":"s2","title":"two","completed":true}]`),
	}
	b, err := doc.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(b.Cards) != 2 || b.Cards[0].ID != "c2" || b.Cards[1].ColumnID != "plans" {
		t.Fatalf("unexpected cards: %+v", b.Cards)
	}
	if len(b.Steps) != 2 || b.Steps[0].Completed || !b.Steps[1].Completed {
		t.Fatalf("unexpected steps: %+v", b.Steps)
	}
}

func TestEmptyBoardEncodesArrays(t *testing.T) {
	doc, err := Board{}.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(doc.Cards) != "[]" || string(doc.Steps) != "[]" {
		t.Fatalf("expected empty arrays, got cards=%s steps=%s", doc.Cards, doc.Steps)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	b := Board{Cards: []Card{{ID: "c1", ColumnID: ColumnPlans, Title: "X"}}}
	c := b.Clone()
	c.Cards[0].Title = "Y"
	if b.Cards[0].Title != "X" {
		t.Fatalf("clone shares backing array")
	}
}

func TestStepNumberIsOneBased(t *testing.T) {
	if StepNumber(0) != 1 || StepNumber(4) != 5 {
		t.Fatalf("unexpected numbering")
	}
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "empty object", body: `{}`},
		{name: "null collections", body: `{"cards":null,"steps":null}`},
		{name: "valid", body: `{"cards":[{"id":"c1","columnId":"plans","title":"X","color":"red"}],"steps":[{"id":"s1","title":"a","completed":true}]}`},
		{name: "step without completed", body: `{"steps":[{"id":"s1","title":"a"}]}`},
		{name: "not json", body: `{`, wantErr: true},
		{name: "cards not array", body: `{"cards":{}}`, wantErr: true},
		{name: "card missing column", body: `{"cards":[{"id":"c1","title":"X"}]}`, wantErr: true},
		{name: "card empty id", body: `{"cards":[{"id":"","columnId":"plans","title":"X"}]}`, wantErr: true},
		{name: "step completed wrong type", body: `{"steps":[{"id":"s1","title":"a","completed":"yes"}]}`, wantErr: true},
		{name: "duplicate card ids", body: `{"cards":[{"id":"c1","columnId":"plans","title":"X"},{"id":"c1","columnId":"done","title":"Y"}]}`, wantErr: true},
		{name: "duplicate step ids", body: `{"steps":[{"id":"s1","title":"a"},{"id":"s1","title":"b"}]}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidatePayload(%s) error = %v, wantErr %v", tt.body, err, tt.wantErr)
			}
			if err != nil {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("expected ValidationError, got %T", err)
				}
			}
		})
	}
}

func TestValidateReportsPath(t *testing.T) {
	err := ValidatePayload([]byte(`{"cards":[{"id":"c1","columnId":"plans","title":"X"},{"id":"c2","title":"Y"}]}`))
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !strings.HasPrefix(ve.Path, "cards/1") {
		t.Fatalf("unexpected path %q", ve.Path)
	}
}
