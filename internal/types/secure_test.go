package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

const testSecret = "super-secret-signing-key-12345"

// Every formatting path a secret could escape through must show the
// placeholder and never the raw value.
func TestSecretStringRedaction(t *testing.T) {
	s := SecretString(testSecret)

	checks := []struct {
		name   string
		render func() (string, error)
	}{
		{"String", func() (string, error) { return s.String(), nil }},
		{"Sprintf %s", func() (string, error) { return fmt.Sprintf("key=%s", s), nil }},
		{"Sprintf %v", func() (string, error) { return fmt.Sprintf("%v", s), nil }},
		{"json.Marshal", func() (string, error) {
			b, err := json.Marshal(s)
			return string(b), err
		}},
		{"json.Marshal in struct", func() (string, error) {
			b, err := json.Marshal(struct {
				SigningKey SecretString `json:"signing_key"`
			}{s})
			return string(b), err
		}},
		{"slog JSON output", func() (string, error) {
			var buf bytes.Buffer
			slog.New(slog.NewJSONHandler(&buf, nil)).Info("configured", "signing_key", s)
			return buf.String(), nil
		}},
	}

	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			out, err := c.render()
			if err != nil {
				t.Fatalf("render failed: %v", err)
			}
			if strings.Contains(out, testSecret) {
				t.Errorf("raw secret leaked: %s", out)
			}
			if !strings.Contains(out, redactedPlaceholder) {
				t.Errorf("output missing %q: %s", redactedPlaceholder, out)
			}
		})
	}
}

func TestSecretStringUnmask(t *testing.T) {
	if got := SecretString(testSecret).Unmask(); got != testSecret {
		t.Errorf("Unmask() = %q, want the raw value", got)
	}
	if got := SecretString("").Unmask(); got != "" {
		t.Errorf("Unmask() on empty secret = %q, want empty", got)
	}
}

func TestSecretStringIsSet(t *testing.T) {
	if SecretString("").IsSet() {
		t.Error("IsSet() = true for empty secret")
	}
	if !SecretString("x").IsSet() {
		t.Error("IsSet() = false for non-empty secret")
	}
}

// An empty secret still redacts: the placeholder must not reveal whether a
// value was configured.
func TestSecretStringEmptyStillRedacts(t *testing.T) {
	s := SecretString("")
	if s.String() != redactedPlaceholder {
		t.Errorf("String() = %q, want %q", s.String(), redactedPlaceholder)
	}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}
	if want := `"` + redactedPlaceholder + `"`; string(data) != want {
		t.Errorf("json.Marshal = %s, want %s", data, want)
	}
}
