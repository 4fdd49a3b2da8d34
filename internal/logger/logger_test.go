package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestLevelFromEnv(t *testing.T) {
	tests := []struct {
		value string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"WARN", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"", logrus.InfoLevel},
		{"verbose", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			if got := levelFromEnv(tt.value); got != tt.want {
				t.Errorf("levelFromEnv(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestForFlow(t *testing.T) {
	entry := ForFlow("stream", "a@b.c", "s1", "gpt-4o")
	if entry.Data["mode"] != "stream" || entry.Data["session_id"] != "s1" {
		t.Errorf("unexpected fields: %v", entry.Data)
	}
}
