package sysutil

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"  DeBuG  ", zerolog.DebugLevel}, // case + trim
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel}, // empty -> info
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel}, // alias
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"trace", zerolog.TraceLevel},
		{"unknown", zerolog.InfoLevel}, // default
	}

	for _, tc := range cases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Fatalf("ParseLevel(%q) -> %v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestSetupLogging_JSONAndLoggerFrom(t *testing.T) {
	origLevel := zerolog.GlobalLevel()
	origLogger := log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(origLevel)
		log.Logger = origLogger
	})

	var buf bytes.Buffer
	SetupLogging("debug", false, &buf)
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Fatalf("level not applied: %v", zerolog.GlobalLevel())
	}

	// No logger on the context -> global logger.
	LoggerFrom(context.Background()).Info().Str("k", "v").Msg("hello")
	if !strings.Contains(buf.String(), `"k":"v"`) || !strings.Contains(buf.String(), `"message":"hello"`) {
		t.Fatalf("global logger output missing fields: %s", buf.String())
	}

	// Attached logger wins.
	var scoped bytes.Buffer
	l := zerolog.New(&scoped).With().Str("request_id", "r1").Logger()
	ctx := l.WithContext(context.Background())
	LoggerFrom(ctx).Info().Msg("scoped")
	if !strings.Contains(scoped.String(), `"request_id":"r1"`) {
		t.Fatalf("scoped logger not used: %q", scoped.String())
	}
}

func TestLoggerFrom_NilAndDisabledFallBack(t *testing.T) {
	//nolint:staticcheck // SA1012
	if LoggerFrom(nil) != &log.Logger {
		t.Fatalf("nil ctx should return the global logger")
	}
	disabled := zerolog.Nop()
	if LoggerFrom(disabled.WithContext(context.Background())) != &log.Logger {
		t.Fatalf("disabled ctx logger should fall back to the global logger")
	}
}
