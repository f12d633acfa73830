package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	Warn("data_quality", map[string]any{"post": "p1", "field": "reach"})
	var e map[string]any
	if err := json.Unmarshal(buf.Bytes(), &e); err != nil {
		t.Fatalf("not json: %v (%q)", err, buf.String())
	}
	if e["level"] != "warning" || e["message"] != "data_quality" || e["post"] != "p1" {
		t.Fatalf("unexpected entry: %v", e)
	}
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	defer SetLevel("info")

	Debug("hidden", nil)
	if buf.Len() != 0 {
		t.Fatalf("debug logged at info level: %s", buf.String())
	}
	SetLevel("debug")
	Debug("shown", nil)
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected debug entry, got %q", buf.String())
	}
	SetLevel("bogus")
	Debug("still", nil)
	if !strings.Contains(buf.String(), "still") {
		t.Fatalf("unknown level should keep debug")
	}
}
