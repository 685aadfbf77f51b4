// Package classifier provides the built-in keyword intent model and a
// circuit-breaker decorator for any domain.Classifier.
package classifier

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"switchboard/internal/domain"
)

// intentPattern maps a set of trigger keywords to an intent. Patterns are
// evaluated in order; the first pattern with any keyword hit wins.
type intentPattern struct {
	intent   string
	kind     domain.AgentKind
	base     float64 // confidence for a single keyword hit
	keywords []string
}

// Confidence calibration: a single keyword hit earns the pattern's base
// confidence; every additional hit adds a small bump, capped below certainty.
const (
	extraKeywordBump = 0.03
	maxConfidence    = 0.95
	chatConfidence   = 0.4 // no keyword matched; the guess is weak and says so
)

// defaultPatterns is the built-in model, version-tagged so determinism is
// checkable across deployments. Order matters: more specific intents first.
var defaultPatterns = []intentPattern{
	{
		intent: "refactor",
		kind:   domain.KindRefactor,
		base:   0.85,
		keywords: []string{
			"refactor", "rewrite", "restructure", "simplify", "extract",
			"rename", "decouple", "clean up", "cleanup", "modernize",
		},
	},
	{
		intent: "format",
		kind:   domain.KindFormatter,
		base:   0.8,
		keywords: []string{
			"format", "indent", "indentation", "whitespace", "tidy",
			"reformat", "style", "organize imports",
		},
	},
	{
		intent: "analyze",
		kind:   domain.KindAnalyzer,
		base:   0.8,
		keywords: []string{
			"analyze", "analyse", "review", "explain", "understand",
			"audit", "inspect", "find bug", "why does", "what does",
			"complexity", "diagnose",
		},
	},
}

// languageHints maps code fragments to a language label. Checked in order;
// the first hit wins.
var languageHints = []struct {
	needle   string
	language string
}{
	{"package main", "go"},
	{"func ", "go"},
	{"public class", "csharp"},
	{"namespace ", "csharp"},
	{"def ", "python"},
	{"import ", "python"},
	{"function ", "javascript"},
	{"const ", "javascript"},
	{"fn ", "rust"},
}

// Keyword is a deterministic keyword-table classifier. It always succeeds:
// a prompt with no keyword hit becomes a low-confidence "chat" classification
// rather than an error, keeping "uncertain" distinct from "broken".
type Keyword struct {
	patterns []intentPattern
	version  string
	logger   *slog.Logger
}

// NewKeyword creates a classifier using the built-in pattern table.
func NewKeyword(logger *slog.Logger) *Keyword {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Keyword{
		patterns: defaultPatterns,
		version:  "keyword-v1",
		logger:   logger,
	}
}

// Version identifies the pattern table; identical input and version yield
// identical classifications.
func (k *Keyword) Version() string { return k.version }

// Classify implements domain.Classifier.
func (k *Keyword) Classify(ctx context.Context, text string) (*domain.IntentClassification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lower := strings.ToLower(text)

	for _, pattern := range k.patterns {
		matched := make([]string, 0, 2)
		for _, kw := range pattern.keywords {
			if strings.Contains(lower, kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) == 0 {
			continue
		}

		confidence := pattern.base + float64(len(matched)-1)*extraKeywordBump
		if confidence > maxConfidence {
			confidence = maxConfidence
		}

		cls := &domain.IntentClassification{
			Intent:        pattern.intent,
			Confidence:    confidence,
			Language:      detectLanguage(text),
			SuggestedKind: pattern.kind,
			Context: map[string]string{
				"keywords":        strings.Join(matched, ","),
				"matched_keyword": matched[0],
				"model_version":   k.version,
			},
		}
		k.logger.Debug("classified prompt",
			"intent", cls.Intent, "confidence", cls.Confidence, "keywords", cls.Context["keywords"])
		return cls, nil
	}

	return &domain.IntentClassification{
		Intent:        "chat",
		Confidence:    chatConfidence,
		Language:      detectLanguage(text),
		SuggestedKind: domain.KindChat,
		Context:       map[string]string{"model_version": k.version},
	}, nil
}

// detectLanguage guesses the programming language from code fragments in the
// text. Returns "" when nothing matches.
func detectLanguage(text string) string {
	for _, hint := range languageHints {
		if strings.Contains(text, hint.needle) {
			return hint.language
		}
	}
	return ""
}

// DetectFileLanguage maps a file extension to a language label, for callers
// that have a path rather than content. Returns "" for unknown extensions.
func DetectFileLanguage(path string) string {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return ""
	}
	switch strings.ToLower(path[idx:]) {
	case ".go":
		return "go"
	case ".cs":
		return "csharp"
	case ".py":
		return "python"
	case ".js", ".jsx":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".rs":
		return "rust"
	case ".java":
		return "java"
	case ".rb":
		return "ruby"
	case ".c", ".h", ".cpp", ".cc", ".hpp":
		return "cpp"
	default:
		return ""
	}
}

var _ domain.Classifier = (*Keyword)(nil)
