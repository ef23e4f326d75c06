package passphrase

import (
	"io"
	"testing"
)

func scripted(answers ...string) func() ([]byte, error) {
	return func() ([]byte, error) {
		if len(answers) == 0 {
			return nil, io.EOF
		}
		next := answers[0]
		answers = answers[1:]
		return []byte(next), nil
	}
}

func TestSourcePrefersEnvironment(t *testing.T) {
	t.Setenv("RMT_TEST_PASS", "from-env")
	src := NewSource("RMT_TEST_PASS")
	got, err := src.Get()
	if err != nil || got != "from-env" {
		t.Fatalf("got %q err=%v", got, err)
	}
}

func TestSourceRejectsEmptyEnvironment(t *testing.T) {
	t.Setenv("RMT_TEST_PASS", "  ")
	if _, err := NewSource("RMT_TEST_PASS").Get(); err == nil {
		t.Fatalf("expected error for blank passphrase")
	}
}

func TestSourcePromptsWithConfirmation(t *testing.T) {
	src := NewSource("RMT_TEST_PASS_UNSET").WithConfirmation()
	src.prompt = io.Discard
	src.isTerm = func() bool { return true }
	src.read = scripted("hunter2", "hunter2")
	got, err := src.Get()
	if err != nil || got != "hunter2" {
		t.Fatalf("got %q err=%v", got, err)
	}

	mismatch := NewSource("").WithConfirmation()
	mismatch.prompt = io.Discard
	mismatch.isTerm = func() bool { return true }
	mismatch.read = scripted("one", "two")
	if _, err := mismatch.Get(); err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestSourceWithoutTerminal(t *testing.T) {
	src := NewSource("")
	src.isTerm = func() bool { return false }
	if _, err := src.Get(); err == nil {
		t.Fatalf("expected error without terminal")
	}
}
