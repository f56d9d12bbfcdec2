package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestPromptConfirmer(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"yes", true},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		p := &PromptConfirmer{In: strings.NewReader(tt.input), Out: &out}
		got, err := p.Confirm(context.Background(), "Delete Budget", "Are you sure?")
		if err != nil {
			t.Fatalf("input %q: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("input %q: got %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "Delete Budget") {
			t.Errorf("prompt not written: %q", out.String())
		}
	}
}

func TestPromptConfirmerAssume(t *testing.T) {
	p := &PromptConfirmer{Assume: true}
	ok, err := p.Confirm(context.Background(), "t", "m")
	if err != nil || !ok {
		t.Fatalf("got %v, %v", ok, err)
	}
}

func TestPromptConfirmerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &PromptConfirmer{In: strings.NewReader("y\n"), Out: &bytes.Buffer{}}
	if _, err := p.Confirm(ctx, "t", "m"); err == nil {
		t.Fatal("expected context error")
	}
}
