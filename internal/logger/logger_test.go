package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestNewLogger_Envs(t *testing.T) {
	for _, env := range []string{"prod", "local", "dev", "docker", "test"} {
		if _, err := NewLogger(env, ""); err != nil {
			t.Errorf("env %q: %v", env, err)
		}
	}
	if _, err := NewLogger("staging", ""); err == nil {
		t.Error("expected error for unknown env")
	}
}

func TestNewLogger_LevelOverride(t *testing.T) {
	l, err := NewLogger("prod", "debug")
	if err != nil {
		t.Fatal(err)
	}
	if !l.Core().Enabled(zap.DebugLevel) {
		t.Error("debug should be enabled")
	}
	if _, err := NewLogger("prod", "loud"); err == nil {
		t.Error("expected error for bad level")
	}
}

func TestFromContext(t *testing.T) {
	fallback := zap.NewExample()
	if got := FromContext(context.Background(), fallback); got != fallback {
		t.Error("expected fallback logger")
	}
	if got := FromContext(context.Background(), nil); got == nil {
		t.Error("expected nop logger")
	}

	reqLogger := zap.NewNop()
	ctx := ContextWithLogger(context.Background(), reqLogger)
	if got := FromContext(ctx, fallback); got != reqLogger {
		t.Error("expected request logger")
	}
}
