package agents

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/domain"
)

func TestAnalyzerMetrics(t *testing.T) {
	a := NewAnalyzer()
	req := &domain.Request{
		Prompt: "analyze this",
		Content: `package main

// entry point
func main() {
	if true {
		println("hi")
	}
}`,
	}
	require.True(t, a.CanHandle(req))

	result, err := a.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.Output, "branch points")
	assert.Equal(t, "1", result.Data["branches"])
	assert.Equal(t, "1", result.Data["comments"])
}

func TestAnalyzerRejectsEmptyRequest(t *testing.T) {
	a := NewAnalyzer()
	assert.False(t, a.CanHandle(&domain.Request{Prompt: "analyze"}))

	result, err := a.Handle(context.Background(), &domain.Request{FilePath: "x.go"})
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestRefactorFlagsLongAndNestedLines(t *testing.T) {
	r := NewRefactor()
	long := strings.Repeat("x", 130)
	nested := "\t\t\t\t\treturn nil"
	req := &domain.Request{Content: long + "\n" + nested + "\n// TODO: fix this later\n"}

	result, err := r.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.Output, "exceeds 120 characters")
	assert.Contains(t, result.Output, "nested 5 levels")
	assert.Contains(t, result.Output, "TODO")
}

func TestRefactorCleanCode(t *testing.T) {
	r := NewRefactor()
	result, err := r.Handle(context.Background(), &domain.Request{Content: "package main\n\nfunc main() {}\n"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "0", result.Data["suggestions"])
}

func TestFormatterNormalizesWhitespace(t *testing.T) {
	f := NewFormatter()
	req := &domain.Request{Content: "func main() {  \n\n\n\tprintln(1)\t\n}\n\n\n"}

	result, err := f.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "func main() {\n\n\tprintln(1)\n}\n", result.Output)
}

func TestFormatterIdempotent(t *testing.T) {
	f := NewFormatter()
	clean := "package main\n\nfunc main() {}\n"

	first, err := f.Handle(context.Background(), &domain.Request{Content: clean})
	require.NoError(t, err)
	second, err := f.Handle(context.Background(), &domain.Request{Content: first.Output})
	require.NoError(t, err)
	assert.Equal(t, first.Output, second.Output)
}

func TestChatAlwaysHandles(t *testing.T) {
	c := NewChat()
	assert.True(t, c.CanHandle(&domain.Request{}))
	assert.False(t, c.CanHandle(nil))

	result, err := c.Handle(context.Background(), &domain.Request{Prompt: "what is this?"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.Output)
}

func TestAgentsHonourCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := &domain.Request{Prompt: "x", Content: "y"}

	for _, agent := range []domain.Agent{NewAnalyzer(), NewRefactor(), NewFormatter(), NewChat()} {
		_, err := agent.Handle(ctx, req)
		assert.Error(t, err, "agent %s", agent.Name())
	}
}

func TestAgentKinds(t *testing.T) {
	assert.Equal(t, domain.KindAnalyzer, NewAnalyzer().Kind())
	assert.Equal(t, domain.KindRefactor, NewRefactor().Kind())
	assert.Equal(t, domain.KindFormatter, NewFormatter().Kind())
	assert.Equal(t, domain.KindChat, NewChat().Kind())
}
