package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/domain"
)

func TestClassifyRefactorIntent(t *testing.T) {
	k := NewKeyword(nil)

	cls, err := k.Classify(context.Background(), "please refactor this method")
	require.NoError(t, err)

	assert.Equal(t, "refactor", cls.Intent)
	assert.Equal(t, domain.KindRefactor, cls.SuggestedKind)
	assert.InDelta(t, 0.85, cls.Confidence, 1e-9)
	assert.Equal(t, "refactor", cls.Context["matched_keyword"])
}

func TestClassifyMultipleKeywordsRaiseConfidence(t *testing.T) {
	k := NewKeyword(nil)

	one, err := k.Classify(context.Background(), "refactor this")
	require.NoError(t, err)
	two, err := k.Classify(context.Background(), "refactor and simplify this")
	require.NoError(t, err)

	assert.Greater(t, two.Confidence, one.Confidence)
	assert.LessOrEqual(t, two.Confidence, 0.95)
	assert.Equal(t, "refactor,simplify", two.Context["keywords"])
}

func TestClassifyConfidenceNeverExceedsCap(t *testing.T) {
	k := NewKeyword(nil)

	cls, err := k.Classify(context.Background(),
		"refactor rewrite restructure simplify extract rename decouple clean up modernize")
	require.NoError(t, err)
	assert.LessOrEqual(t, cls.Confidence, 0.95)
}

func TestClassifyFirstPatternWins(t *testing.T) {
	// "refactor" appears before "format" in the table, so a prompt hitting
	// both resolves to refactor.
	k := NewKeyword(nil)

	cls, err := k.Classify(context.Background(), "refactor and format this file")
	require.NoError(t, err)
	assert.Equal(t, "refactor", cls.Intent)
}

func TestClassifyUnknownFallsBackToChat(t *testing.T) {
	k := NewKeyword(nil)

	cls, err := k.Classify(context.Background(), "hello there")
	require.NoError(t, err)

	assert.Equal(t, "chat", cls.Intent)
	assert.Equal(t, domain.KindChat, cls.SuggestedKind)
	assert.Equal(t, 0.4, cls.Confidence)
}

func TestClassifyDeterministic(t *testing.T) {
	k := NewKeyword(nil)

	first, err := k.Classify(context.Background(), "analyze the complexity of this function")
	require.NoError(t, err)
	second, err := k.Classify(context.Background(), "analyze the complexity of this function")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestClassifyCaseInsensitiveKeywords(t *testing.T) {
	k := NewKeyword(nil)

	cls, err := k.Classify(context.Background(), "REFACTOR This Code")
	require.NoError(t, err)
	assert.Equal(t, "refactor", cls.Intent)
}

func TestClassifyDetectsLanguage(t *testing.T) {
	k := NewKeyword(nil)

	tests := []struct {
		text string
		want string
	}{
		{"analyze this: package main", "go"},
		{"analyze this: public class Foo {}", "csharp"},
		{"analyze this: def foo():", "python"},
		{"just a plain sentence to look at", ""},
	}
	for _, tt := range tests {
		cls, err := k.Classify(context.Background(), tt.text)
		require.NoError(t, err)
		assert.Equal(t, tt.want, cls.Language, "text: %s", tt.text)
	}
}

func TestClassifyHonoursCancelledContext(t *testing.T) {
	k := NewKeyword(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := k.Classify(ctx, "refactor this")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDetectFileLanguage(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"main.go", "go"},
		{"Service.cs", "csharp"},
		{"script.py", "python"},
		{"app.tsx", "typescript"},
		{"README", ""},
		{"archive.zip", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectFileLanguage(tt.path), "path: %s", tt.path)
	}
}
