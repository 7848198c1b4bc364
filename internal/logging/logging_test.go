package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewParsesLevel(t *testing.T) {
	t.Setenv(EnvLevel, "")
	l, err := New("debug")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level = %s, want debug", l.GetLevel())
	}
}

func TestNewEnvOverride(t *testing.T) {
	t.Setenv(EnvLevel, "warn")
	l, err := New("debug")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.GetLevel() != logrus.WarnLevel {
		t.Fatalf("level = %s, want warn from environment", l.GetLevel())
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Setenv(EnvLevel, "")
	if _, err := New("chatty"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("OrDiscard(nil) returned nil")
	}
	l := logrus.New()
	if OrDiscard(l) != l {
		t.Fatal("OrDiscard replaced a non-nil logger")
	}
}
