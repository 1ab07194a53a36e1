package domain

import (
	"strings"
	"testing"
)

func TestNewIDsAreUniqueAndPrefixed(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewCardID()
		if !strings.HasPrefix(id, "card-") {
			t.Fatalf("unexpected card id %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
	if id := NewStepID(); !strings.HasPrefix(id, "step-") {
		t.Fatalf("unexpected step id %q", id)
	}
}

func TestNextStampStrictlyIncreases(t *testing.T) {
	prev := nextStamp()
	for i := 0; i < 100; i++ {
		next := nextStamp()
		if next <= prev {
			t.Fatalf("stamp did not increase: %d <= %d", next, prev)
		}
		prev = next
	}
}

func TestParseAuthPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    AuthPolicy
		wantErr bool
	}{
		{in: "", want: AuthServerSession},
		{in: "server-session", want: AuthServerSession},
		{in: "client-flag-only", want: AuthClientFlag},
		{in: "cookie", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseAuthPolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("ParseAuthPolicy(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestHasColumn(t *testing.T) {
	if !HasColumn(ProjectColumns, ColumnDone) {
		t.Fatalf("expected done column")
	}
	if HasColumn(ProjectColumns, "dovi") {
		t.Fatalf("todo column leaked into project columns")
	}
	cards := []Card{{ID: "a", ColumnID: "plans"}, {ID: "b", ColumnID: "done"}, {ID: "c", ColumnID: "plans"}}
	got := CardsIn(cards, "plans")
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("unexpected cards: %+v", got)
	}
}
