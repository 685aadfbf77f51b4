// Package steps holds the built-in workflow steps that run around every agent
// invocation: request tracing, language tagging, input guarding, and note
// collection. Step order constants leave gaps so deployments can slot their
// own steps between the built-ins.
package steps

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"switchboard/internal/adapter/classifier"
	"switchboard/internal/domain"
)

// Built-in step ordering. Tracing first, guarding before anything acts on the
// content, notes last.
const (
	OrderTrace    = 10
	OrderLanguage = 20
	OrderGuard    = 30
	OrderNotes    = 90
)

// Trace records the request's arrival into the workflow context and logs it.
// It applies to every request.
type Trace struct {
	logger *slog.Logger
}

func NewTrace(logger *slog.Logger) *Trace {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trace{logger: logger}
}

func (t *Trace) Name() string                   { return "trace" }
func (t *Trace) Order() int                     { return OrderTrace }
func (t *Trace) CanHandle(*domain.Request) bool { return true }

func (t *Trace) Execute(ctx context.Context, req *domain.Request, wc *domain.WorkflowContext) (*domain.StepResult, error) {
	wc.Set("trace.request_id", req.ID)
	wc.Set("trace.received_at", time.Now().UTC().Format(time.RFC3339Nano))
	wc.Set("trace.priority", req.Priority.String())

	t.logger.Debug("request entered workflow",
		"request_id", req.ID,
		"priority", req.Priority.String(),
		"content_bytes", len(req.Content),
	)
	return &domain.StepResult{Success: true, Message: "request traced"}, nil
}

// Language tags the request's language in the workflow context, preferring
// the file extension over content heuristics. Applies only when there is a
// file path or content to inspect.
type Language struct{}

func NewLanguage() *Language { return &Language{} }

func (l *Language) Name() string { return "language" }
func (l *Language) Order() int   { return OrderLanguage }

func (l *Language) CanHandle(req *domain.Request) bool {
	return req.FilePath != "" || req.Content != ""
}

func (l *Language) Execute(_ context.Context, req *domain.Request, wc *domain.WorkflowContext) (*domain.StepResult, error) {
	if req.Content != "" {
		wc.Set("content.lines", strconv.Itoa(strings.Count(req.Content, "\n")+1))
	}

	lang := classifier.DetectFileLanguage(req.FilePath)
	source := "extension"
	if lang == "" {
		lang = contentLanguage(req.Content)
		source = "content"
	}
	if lang == "" {
		return &domain.StepResult{Success: true, Message: "language unknown"}, nil
	}

	wc.Set("language", lang)
	wc.Set("language.source", source)
	return &domain.StepResult{
		Success: true,
		Message: fmt.Sprintf("language detected: %s (%s)", lang, source),
		Output:  map[string]string{"language": lang, "source": source},
	}, nil
}

func contentLanguage(content string) string {
	switch {
	case strings.Contains(content, "package main"), strings.Contains(content, "func "):
		return "go"
	case strings.Contains(content, "public class"), strings.Contains(content, "namespace "):
		return "csharp"
	case strings.Contains(content, "def "):
		return "python"
	case strings.Contains(content, "function "):
		return "javascript"
	default:
		return ""
	}
}

// GuardConfig bounds what the pipeline will accept.
type GuardConfig struct {
	// MaxContentBytes rejects oversized payloads. 0 means the default.
	MaxContentBytes int `yaml:"max_content_bytes"`
}

const defaultMaxContentBytes = 1 << 20 // 1 MiB

// secretPatterns flags content that looks like it embeds credentials. The
// guard fails fatally on a hit: leaked secrets must never reach an agent.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)aws_secret_access_key\s*[:=]`),
	regexp.MustCompile(`(?i)-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----`),
	regexp.MustCompile(`(?i)(api[_-]?key|secret|token|password)\s*[:=]\s*['"][^'"\s]{16,}['"]`),
}

// Guard enforces input limits and halts the workflow fatally on violation.
type Guard struct {
	maxBytes int
	logger   *slog.Logger
}

func NewGuard(cfg GuardConfig, logger *slog.Logger) *Guard {
	maxBytes := cfg.MaxContentBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxContentBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{maxBytes: maxBytes, logger: logger}
}

func (g *Guard) Name() string                   { return "guard" }
func (g *Guard) Order() int                     { return OrderGuard }
func (g *Guard) CanHandle(*domain.Request) bool { return true }

func (g *Guard) Execute(_ context.Context, req *domain.Request, wc *domain.WorkflowContext) (*domain.StepResult, error) {
	if len(req.Content) > g.maxBytes {
		g.logger.Warn("request rejected by guard",
			"request_id", req.ID, "content_bytes", len(req.Content), "limit", g.maxBytes)
		return &domain.StepResult{
			Success: false,
			Fatal:   true,
			Message: fmt.Sprintf("content size %d exceeds limit %d", len(req.Content), g.maxBytes),
		}, nil
	}

	for _, pattern := range secretPatterns {
		if pattern.MatchString(req.Content) || pattern.MatchString(req.Prompt) {
			g.logger.Warn("request rejected by guard: credential-like content", "request_id", req.ID)
			return &domain.StepResult{
				Success: false,
				Fatal:   true,
				Message: "content appears to contain credentials; refusing to dispatch",
			}, nil
		}
	}

	wc.Set("guard.passed", "true")
	return &domain.StepResult{Success: true, Message: "guard checks passed"}, nil
}

// Notes collects what earlier steps left in the workflow context into one
// human-readable summary. It runs last.
type Notes struct{}

func NewNotes() *Notes { return &Notes{} }

func (n *Notes) Name() string                   { return "notes" }
func (n *Notes) Order() int                     { return OrderNotes }
func (n *Notes) CanHandle(*domain.Request) bool { return true }

func (n *Notes) Execute(_ context.Context, _ *domain.Request, wc *domain.WorkflowContext) (*domain.StepResult, error) {
	snapshot := wc.Snapshot()
	return &domain.StepResult{
		Success: true,
		Message: fmt.Sprintf("%d context entries collected", len(snapshot)),
		Output:  snapshot,
	}, nil
}

var (
	_ domain.WorkflowStep = (*Trace)(nil)
	_ domain.WorkflowStep = (*Language)(nil)
	_ domain.WorkflowStep = (*Guard)(nil)
	_ domain.WorkflowStep = (*Notes)(nil)
)
