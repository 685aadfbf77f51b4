package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/domain"
)

const sampleRules = `
rules:
  - id: r-refactor
    name: refactor-to-refactor
    enabled: true
    priority: 10
    target_kind: refactor
    confidence_boost: 0.1
    conditions:
      - field: intent
        operator: contains
        value: refactor
  - name: csharp-to-analyzer
    enabled: true
    priority: 5
    target_agent: analyzer
    conditions:
      - field: language
        operator: equals
        value: csharp
`

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadRules(t *testing.T) {
	rules, err := LoadRules(writeRules(t, sampleRules))
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, "r-refactor", rules[0].ID)
	assert.Equal(t, domain.KindRefactor, rules[0].TargetKind)
	assert.Equal(t, 0.1, rules[0].ConfidenceBoost)
	require.Len(t, rules[0].Conditions, 1)
	assert.Equal(t, domain.FieldIntent, rules[0].Conditions[0].Field)
	assert.Equal(t, domain.OpContains, rules[0].Conditions[0].Operator)

	// ID left empty for the engine to assign.
	assert.Empty(t, rules[1].ID)
	assert.Equal(t, "analyzer", rules[1].TargetAgent)
}

func TestLoadRulesMissingTarget(t *testing.T) {
	_, err := LoadRules(writeRules(t, `
rules:
  - name: aimless
    enabled: true
    conditions:
      - field: intent
        operator: equals
        value: x
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target_agent or target_kind")
}

func TestLoadRulesDuplicateID(t *testing.T) {
	_, err := LoadRules(writeRules(t, `
rules:
  - id: dup
    name: one
    target_agent: chat
  - id: dup
    name: two
    target_agent: chat
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicates id")
}

func TestLoadRulesMissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestWatchRulesDeliversReload(t *testing.T) {
	path := writeRules(t, sampleRules)

	var reloads atomic.Int32
	var lastCount atomic.Int32
	w, err := WatchRules(path, func(rules []*domain.RoutingRule) {
		reloads.Add(1)
		lastCount.Store(int32(len(rules)))
	}, nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - name: only-one
    enabled: true
    target_agent: chat
`), 0o600))

	require.Eventually(t, func() bool { return reloads.Load() >= 1 },
		3*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(1), lastCount.Load())
}

func TestWatchRulesSkipsInvalidFile(t *testing.T) {
	path := writeRules(t, sampleRules)

	var reloads atomic.Int32
	w, err := WatchRules(path, func([]*domain.RoutingRule) { reloads.Add(1) }, nil)
	require.NoError(t, err)
	defer w.Close()

	// A broken file must not reach the callback.
	require.NoError(t, os.WriteFile(path, []byte("rules: [broken"), 0o600))
	time.Sleep(500 * time.Millisecond)
	assert.Zero(t, reloads.Load())
}
