package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_LoadMissing(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "cursor"))

	v, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if v != 0 {
		t.Errorf("expected 0 for missing checkpoint, got %d", v)
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "cursor"))

	values := []int64{0, 35, 70, 12345678901}
	for _, want := range values {
		if err := s.Save(want); err != nil {
			t.Fatalf("Save(%d) failed: %v", want, err)
		}
		got, err := s.Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if got != want {
			t.Errorf("Load = %d, want %d", got, want)
		}
	}
}

func TestFileStore_SaveNegative(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "cursor"))
	if err := s.Save(-1); err == nil {
		t.Error("expected error saving negative cursor")
	}
}

func TestFileStore_CorruptDegradesToZero(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"garbage", "not a number"},
		{"negative", "-42"},
		{"empty", ""},
		{"partial", "12a4"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cursor")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatal(err)
			}

			v, err := NewFileStore(path).Load()
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if v != 0 {
				t.Errorf("expected corrupt checkpoint to load as 0, got %d", v)
			}
		})
	}
}

func TestFileStore_UnreadablePathDegradesToZero(t *testing.T) {
	// A directory at the checkpoint path makes the read fail with
	// something other than ENOENT; Load still starts over at 0.
	v, err := NewFileStore(t.TempDir()).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if v != 0 {
		t.Errorf("expected unreadable checkpoint to load as 0, got %d", v)
	}
}

func TestFileStore_TrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursor")
	if err := os.WriteFile(path, []byte(" 350\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	v, err := NewFileStore(path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if v != 350 {
		t.Errorf("Load = %d, want 350", v)
	}
}

func TestFileStore_NoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "cursor"))
	if err := s.Save(99); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "cursor" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("expected only the checkpoint file, found %v", names)
	}
}
