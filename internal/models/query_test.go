package models

import "testing"

func TestSearchQuery_Validate(t *testing.T) {
	tests := []struct {
		name      string
		query     SearchQuery
		wantErr   bool
		wantLimit int
	}{
		{"text with default limit", SearchQuery{Text: "decision"}, false, 10},
		{"file keeps limit", SearchQuery{File: "/n/a.md", Limit: 3}, false, 3},
		{"large limit kept", SearchQuery{Text: "x", Limit: 1000}, false, 1000},
		{"empty", SearchQuery{}, true, 0},
		{"both", SearchQuery{Text: "x", File: "y"}, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.query
			err := q.Validate(10)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v, wantErr=%v", err, tt.wantErr)
			}
			if !tt.wantErr && q.Limit != tt.wantLimit {
				t.Errorf("limit=%d, want %d", q.Limit, tt.wantLimit)
			}
		})
	}
}

func TestSearchQuery_Description(t *testing.T) {
	if got := (&SearchQuery{Text: "risk"}).Description(); got != `"risk"` {
		t.Errorf("got %q", got)
	}
	if got := (&SearchQuery{File: "/n/a.md"}).Description(); got != "file: a.md" {
		t.Errorf("got %q", got)
	}
}

func TestClassification_String(t *testing.T) {
	for c, want := range map[Classification]string{Unchanged: "unchanged", Changed: "changed", New: "new"} {
		if c.String() != want {
			t.Errorf("%d: got %s", c, c.String())
		}
	}
}
