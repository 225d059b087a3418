package secretstore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFromEnv(t *testing.T) {
	t.Setenv("TEST_SIGNING_KEY", "super-secret-value")

	s, err := FromEnv(map[string]string{
		NameTokenSigning: "TEST_SIGNING_KEY",
	})
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}

	got, err := s.Get(NameTokenSigning)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "super-secret-value" {
		t.Errorf("Get() = %q, want super-secret-value", got)
	}
}

func TestFromEnvRejectsEmpty(t *testing.T) {
	t.Setenv("TEST_EMPTY_KEY", "")
	if _, err := FromEnv(map[string]string{NameTokenSigning: "TEST_EMPTY_KEY"}); err == nil {
		t.Error("FromEnv() with empty value: want error")
	}
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret")
	if err := os.WriteFile(path, []byte("file-secret\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	s, err := FromFile(NameTokenHash, path)
	if err != nil {
		t.Fatalf("FromFile() error = %v", err)
	}
	got, err := s.Get(NameTokenHash)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "file-secret" {
		t.Errorf("Get() = %q, want file-secret (trailing newline trimmed)", got)
	}
}

func TestGetUnknownName(t *testing.T) {
	s := &Store{secrets: map[string][]byte{}}
	if _, err := s.Get("nope"); err == nil {
		t.Error("Get() on unknown name: want error")
	}
}

func TestMerge(t *testing.T) {
	a := &Store{secrets: map[string][]byte{"a": []byte("1"), "shared": []byte("from-a")}}
	b := &Store{secrets: map[string][]byte{"b": []byte("2"), "shared": []byte("from-b")}}

	merged := a.Merge(b)
	if v, _ := merged.Get("a"); string(v) != "1" {
		t.Errorf("merged a = %q, want 1", v)
	}
	if v, _ := merged.Get("b"); string(v) != "2" {
		t.Errorf("merged b = %q, want 2", v)
	}
	if v, _ := merged.Get("shared"); string(v) != "from-b" {
		t.Errorf("merged shared = %q, want from-b (override)", v)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := &Store{secrets: map[string][]byte{"k": []byte("original")}}
	got, _ := s.Get("k")
	got[0] = 'X'

	again, _ := s.Get("k")
	if string(again) != "original" {
		t.Errorf("Get() leaked internal slice: second call = %q, want original", again)
	}
}
