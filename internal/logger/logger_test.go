package logger

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestInitLoggerLevel(t *testing.T) {
	tests := []struct {
		env  string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run("level "+tt.env, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.env)
			if got := InitLogger().GetLevel(); got != tt.want {
				t.Errorf("GetLevel() = %s, want %s", got, tt.want)
			}
		})
	}
}
