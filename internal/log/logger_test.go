package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestWithComponentReplacesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Handler: slog.NewTextHandler(&buf, nil)}).
		With(FieldUserID, "u1").
		WithComponent(ComponentSession)

	logger.Info("opened")

	out := buf.String()
	if strings.Count(out, "component=") != 1 || !strings.Contains(out, "component=session") {
		t.Fatalf("expected a single session component: %s", out)
	}
	if !strings.Contains(out, "user_id=u1") {
		t.Fatalf("attributes lost across WithComponent: %s", out)
	}
	if logger.Component() != ComponentSession {
		t.Fatalf("component = %q", logger.Component())
	}
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "json", Output: &buf, Component: ComponentWorker, Level: slog.LevelDebug})
	logger.Debug("tick", FieldPeriod, "2025-03")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not json: %v: %s", err, buf.String())
	}
	if rec[FieldComponent] != ComponentWorker || rec[FieldPeriod] != "2025-03" {
		t.Fatalf("unexpected record: %v", rec)
	}
}
