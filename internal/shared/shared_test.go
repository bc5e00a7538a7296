package shared

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()

	if len(a) != 36 {
		t.Errorf("expected a UUID string, got %q", a)
	}
	if a == b {
		t.Error("expected unique IDs")
	}
}

func TestGenerateState(t *testing.T) {
	a, err := GenerateState()
	if err != nil {
		t.Fatalf("failed to generate state: %v", err)
	}

	decoded, err := base64.RawURLEncoding.DecodeString(a)
	if err != nil {
		t.Fatalf("state is not url-safe base64: %v", err)
	}
	if len(decoded) != 32 {
		t.Errorf("expected 32 bytes of entropy, got %d", len(decoded))
	}

	b, err := GenerateState()
	if err != nil {
		t.Fatalf("failed to generate state: %v", err)
	}
	if a == b {
		t.Error("expected unique state tokens")
	}
}

func TestMarshalJSON(t *testing.T) {
	payload := map[string]any{"status": "succeeded", "rows": 3}

	t.Run("Compact", func(t *testing.T) {
		data, err := MarshalJSON(payload, false)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if strings.Contains(string(data), "\n") {
			t.Errorf("expected compact output, got: %s", data)
		}
	})

	t.Run("Pretty", func(t *testing.T) {
		data, err := MarshalJSON(payload, true)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if !strings.Contains(string(data), "\n  ") {
			t.Errorf("expected indented output, got: %s", data)
		}
	})
}

func TestVerifyAndReadFile(t *testing.T) {
	t.Run("Reads Existing File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "data.json")
		if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}

		data, err := VerifyAndReadFile(path)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if string(data) != "{}" {
			t.Errorf("unexpected contents: %s", data)
		}
	})

	t.Run("Empty Path", func(t *testing.T) {
		if _, err := VerifyAndReadFile(""); !errors.Is(err, ErrMissingArgument) {
			t.Errorf("expected a missing argument error, got %v", err)
		}
	})

	t.Run("Missing File", func(t *testing.T) {
		if _, err := VerifyAndReadFile("/nonexistent/data.json"); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("expected an invalid argument error, got %v", err)
		}
	})
}
