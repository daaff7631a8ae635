package llm

import (
	"strings"
	"testing"
)

func TestParseFactCandidates(t *testing.T) {
	raw := `{"facts":[
		{"subject":"Paris","predicate":"is the capital of","object":"France","confidence":0.95},
		{"subject":"","predicate":"is","object":"dropped","confidence":0.9},
		{"subject":"Berlin","predicate":"is the capital of","object":"Germany","confidence":"0.8"},
		{"subject":"Bad","predicate":"confidence","object":"entry","confidence":"not a number"}
	]}`

	got := parseFactCandidates(raw)
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	if got[0].Subject != "Paris" || got[0].Confidence != 0.95 {
		t.Errorf("unexpected first candidate: %+v", got[0])
	}
	if got[1].Confidence != 0.8 {
		t.Errorf("string confidence should coerce to 0.8, got %v", got[1].Confidence)
	}
	if got[2].Confidence != 0 {
		t.Errorf("unparseable confidence should coerce to 0, got %v", got[2].Confidence)
	}
}

func TestParseFactCandidatesMalformed(t *testing.T) {
	for _, raw := range []string{"", "not json", `{"facts": "oops"}`, `[1,2,3]`} {
		if got := parseFactCandidates(raw); len(got) != 0 {
			t.Errorf("parseFactCandidates(%q) = %v, want empty", raw, got)
		}
	}
}

func TestParseFactCandidatesCodeFence(t *testing.T) {
	raw := "```json\n{\"facts\":[{\"subject\":\"a\",\"predicate\":\"b\",\"object\":\"c\",\"confidence\":0.5}]}\n```"
	got := parseFactCandidates(raw)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate from fenced output, got %d", len(got))
	}
}

func TestParseFactCandidatesClampsFields(t *testing.T) {
	long := strings.Repeat("x", 1000)
	raw := `{"facts":[{"subject":"` + long + `","predicate":"p","object":"o","confidence":2.5}]}`
	got := parseFactCandidates(raw)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if len(got[0].Subject) != maxFieldLen {
		t.Errorf("subject should be clamped to %d chars, got %d", maxFieldLen, len(got[0].Subject))
	}
	if got[0].Confidence != 1 {
		t.Errorf("confidence should clamp to 1, got %v", got[0].Confidence)
	}
}

func TestParseFactCandidatesCapsList(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`{"facts":[`)
	for i := 0; i < 100; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"subject":"s","predicate":"p","object":"o","confidence":0.5}`)
	}
	sb.WriteString(`]}`)

	got := parseFactCandidates(sb.String())
	if len(got) != maxCandidates {
		t.Errorf("expected list capped at %d, got %d", maxCandidates, len(got))
	}
}

func TestParseVariants(t *testing.T) {
	raw := "1. first phrasing\n- second phrasing\n\nthird phrasing\nfourth phrasing"
	got := parseVariants(raw, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 variants, got %d: %v", len(got), got)
	}
	if got[0] != "first phrasing" || got[1] != "second phrasing" || got[2] != "third phrasing" {
		t.Errorf("unexpected variants: %v", got)
	}
}

func TestParseVariantsEmpty(t *testing.T) {
	if got := parseVariants("", 5); len(got) != 0 {
		t.Errorf("expected no variants, got %v", got)
	}
}
