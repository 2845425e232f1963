package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoadRejectsNonPositiveReconcileWindows(t *testing.T) {
	t.Setenv("RECONCILE_INTERVAL", "0s")
	t.Setenv("RECONCILE_GRACE", "-5m")
	t.Setenv("RECONCILE_EXPIRY", "soon")

	cfg := Load()
	assert.Equal(t, 5*time.Minute, cfg.ReconcileInterval)
	assert.Equal(t, 10*time.Minute, cfg.ReconcileGrace)
	assert.Equal(t, 24*time.Hour, cfg.ReconcileExpiry)
}

func TestLoadReadsReconcileInterval(t *testing.T) {
	t.Setenv("RECONCILE_INTERVAL", "30s")

	assert.Equal(t, 30*time.Second, Load().ReconcileInterval)
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, time.Minute, parsePositiveDuration("-1s", time.Minute))
	assert.Equal(t, 2*time.Second, parsePositiveDuration("2s", time.Minute))
	assert.True(t, parseBool("nope", true))
	assert.Equal(t, []string{"a", "b"}, parseStringSlice(" a, ,b "))

	fallback := decimal.NewFromInt(50000)
	assert.True(t, parseDecimal("-1", fallback).Equal(fallback))
	assert.True(t, parseDecimal("12.5", fallback).Equal(decimal.RequireFromString("12.5")))
}
