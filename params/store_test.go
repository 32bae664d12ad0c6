package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempParams(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFlattensNestedKeys(t *testing.T) {
	path := writeTempParams(t, `
risk:
  singleMax: 5
  maxNotional: 25000.5
  enabled: true
levels:
  step: "2.5"
  maxAge: 90s
system: demo
`)
	s, err := Load(path)
	require.NoError(t, err)

	assert.False(t, s.Stale(), "first load is not a change")
	assert.Equal(t, 5.0, s.Float("risk.singleMax", 0))
	assert.Equal(t, 5, s.Int("risk.singleMax", 0))
	assert.Equal(t, 25000.5, s.Float("risk.maxNotional", 0))
	assert.True(t, s.Bool("risk.enabled", false))
	assert.Equal(t, 2.5, s.Float("levels.step", 0))
	assert.Equal(t, 90*time.Second, s.Duration("levels.maxAge", 0))
	assert.Equal(t, "demo", s.String("system", ""))
	assert.Equal(t, []string{"levels.maxAge", "levels.step", "risk.enabled", "risk.maxNotional", "risk.singleMax", "system"}, s.Keys())
}

func TestDefaultsOnMissingOrMistyped(t *testing.T) {
	s := FromMap(map[string]interface{}{"name": "x", "flag": "maybe"})
	assert.Equal(t, 7.0, s.Float("missing", 7))
	assert.Equal(t, 3, s.Int("name", 3))
	assert.False(t, s.Bool("flag", false))
	assert.Equal(t, time.Minute, s.Duration("name", time.Minute))
	assert.Equal(t, "d", s.String("missing", "d"))
}

func TestRefreshMarksStale(t *testing.T) {
	path := writeTempParams(t, "a: 1\n")
	s, err := Load(path)
	require.NoError(t, err)
	v0 := s.Version()

	require.NoError(t, os.WriteFile(path, []byte("a: 2\n"), 0o644))
	require.NoError(t, s.Refresh())
	assert.True(t, s.Stale())
	assert.Equal(t, 2, s.Int("a", 0))
	assert.Greater(t, s.Version(), v0)

	s.ClearStale()
	assert.False(t, s.Stale())
}

func TestRefreshKeepsOldValuesOnParseError(t *testing.T) {
	path := writeTempParams(t, "a: 1\n")
	s, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("a: [1, 2\n"), 0o644))
	assert.Error(t, s.Refresh())
	assert.Equal(t, 1, s.Int("a", 0))
	assert.False(t, s.Stale())
}

func TestSetMarksStale(t *testing.T) {
	s := FromMap(nil)
	s.Set("risk.netMax", 3)
	assert.True(t, s.Stale())
	assert.Equal(t, 3, s.Int("risk.netMax", 0))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
