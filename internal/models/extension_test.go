package models

import (
	"database/sql/driver"
	"encoding/json"
	"testing"
)

// TestExtensionImplementsInterfaces verifies Extension works as a database column type
func TestExtensionImplementsInterfaces(t *testing.T) {
	var _ driver.Valuer = Extension{}

	var e Extension
	var scanner interface{} = &e
	if _, ok := scanner.(interface{ Scan(interface{}) error }); !ok {
		t.Error("Extension does not implement sql.Scanner interface")
	}
}

// TestExtensionScan tests reading the JSON column
func TestExtensionScan(t *testing.T) {
	tests := []struct {
		name      string
		input     interface{}
		wantError bool
		wantLen   int
	}{
		{name: "nil value", input: nil},
		{name: "bytes", input: []byte(`{"creator":"0xabc","skipPp":1}`), wantLen: 2},
		{name: "string", input: `{"notifyId":7}`, wantLen: 1},
		{name: "empty object", input: `{}`},
		{name: "empty string", input: ""},
		{name: "invalid JSON", input: `{oops}`, wantError: true},
		{name: "unsupported type", input: 42, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e Extension
			err := e.Scan(tt.input)
			if tt.wantError {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(e) != tt.wantLen {
				t.Errorf("expected %d fields, got %d", tt.wantLen, len(e))
			}
		})
	}
}

// TestExtensionValue tests writing the JSON column
func TestExtensionValue(t *testing.T) {
	val, err := Extension{}.Value()
	if err != nil || val != nil {
		t.Errorf("expected nil value for empty extension, got %v (%v)", val, err)
	}

	e := Extension{"creator": json.RawMessage(`"0xabc"`)}
	val, err = e.Value()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]string
	if err := json.Unmarshal([]byte(val.(string)), &decoded); err != nil {
		t.Fatalf("Value() did not return valid JSON: %v", err)
	}
	if decoded["creator"] != "0xabc" {
		t.Errorf("expected creator 0xabc, got %q", decoded["creator"])
	}
}

// TestExtensionBool tests flag decoding
func TestExtensionBool(t *testing.T) {
	e := Extension{
		"yes":    json.RawMessage(`true`),
		"no":     json.RawMessage(`false`),
		"one":    json.RawMessage(`1`),
		"zero":   json.RawMessage(`0`),
		"string": json.RawMessage(`"true"`),
	}

	cases := map[string]bool{"yes": true, "no": false, "one": true, "zero": false, "string": false, "missing": false}
	for name, want := range cases {
		if got := e.Bool(name); got != want {
			t.Errorf("Bool(%q) = %v, want %v", name, got, want)
		}
	}
}

// TestParseIslands tests island name resolution
func TestParseIslands(t *testing.T) {
	islands, err := ParseIslands([]string{"main", "Wizard", " ghost "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(islands) != 3 || islands[0].ID != 0 || islands[1].ID != 2 || islands[2].ID != 4 {
		t.Errorf("unexpected islands: %+v", islands)
	}

	if _, err := ParseIslands([]string{"atlantis"}); err == nil {
		t.Error("expected error for unknown island")
	}
	if _, err := ParseIslands([]string{"main", "MAIN"}); err == nil {
		t.Error("expected error for duplicate island")
	}
}
