package zaplogger

import (
	"errors"
	"testing"

	"github.com/Zhima-Mochi/restaurant-pos/internal/observability"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerCarriesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := New(zap.New(core), observability.F("service", "pos"))

	l.With(observability.F("order_id", "R1_1")).Warn("negative_stock",
		observability.F("error", errors.New("boom")),
	)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["service"] != "pos" || ctx["order_id"] != "R1_1" || ctx["error"] != "boom" {
		t.Fatalf("unexpected context %v", ctx)
	}
	if entries[0].Message != "negative_stock" {
		t.Fatalf("message = %q", entries[0].Message)
	}
}
