package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := NewPolicyConfigHolder()
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicyConfig(), holder.Get())
	assert.Equal(t, 30*24*time.Hour, holder.Get().InstallmentInterval())
}

func TestPolicyLoadsFile(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, `
policy:
  installmentIntervalDays: 14
  maxPhotosPerReport: 3
  photoMaxDimension: 800
  photoMaxPixels: 1000000
  photoJpegQuality: 70
  summaryCacheTTL: 1m
`)
	t.Chdir(dir)

	holder, err := NewPolicyConfigHolder()
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 14, cfg.InstallmentIntervalDays)
	assert.Equal(t, 3, cfg.MaxPhotosPerReport)
	assert.Equal(t, 800, cfg.PhotoMaxDimension)
	assert.Equal(t, 1_000_000, cfg.PhotoMaxPixels)
	assert.Equal(t, 70, cfg.PhotoJPEGQuality)
	assert.Equal(t, time.Minute, cfg.SummaryCacheTTL)
}

func TestPolicyRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, `
policy:
  installmentIntervalDays: 0
`)
	t.Chdir(dir)

	_, err := NewPolicyConfigHolder()
	require.Error(t, err)
}

func TestPolicyRejectsNonPositivePixelBudget(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, `
policy:
  photoMaxPixels: -1
`)
	t.Chdir(dir)

	_, err := NewPolicyConfigHolder()
	require.Error(t, err)
}

func TestNilPolicyHolderFallsBackToDefaults(t *testing.T) {
	var holder *PolicyConfigHolder
	assert.Equal(t, DefaultPolicyConfig(), holder.Get())
}

func writePolicy(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "policy.yml"), []byte(body), 0o600))
}
