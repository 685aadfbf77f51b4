// Package agents provides the built-in agent set: analyzer, refactor,
// formatter, and chat. They operate on the request's inline content and
// carry no external process dependencies, which makes them a safe default
// wiring and a realistic fixture for the dispatch pipeline.
package agents

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"switchboard/internal/domain"
)

// Analyzer inspects code content and reports structural metrics: line counts,
// rough complexity, and long-function warnings.
type Analyzer struct{}

func NewAnalyzer() *Analyzer { return &Analyzer{} }

func (a *Analyzer) Name() string           { return "analyzer" }
func (a *Analyzer) Kind() domain.AgentKind { return domain.KindAnalyzer }

// CanHandle accepts any request that carries content to look at.
func (a *Analyzer) CanHandle(req *domain.Request) bool {
	return req != nil && (req.Content != "" || req.FilePath != "")
}

func (a *Analyzer) Handle(ctx context.Context, req *domain.Request) (*domain.AgentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Content == "" {
		return &domain.AgentResult{
			Success: false,
			Err:     "no content to analyze",
		}, nil
	}

	lines := strings.Split(req.Content, "\n")
	var code, blank, comment, branches int
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			blank++
		case strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#"):
			comment++
		default:
			code++
			for _, kw := range []string{"if ", "if(", "for ", "for(", "while ", "while(", "switch ", "case ", "catch"} {
				if strings.Contains(trimmed, kw) {
					branches++
					break
				}
			}
		}
	}

	var findings []string
	if code > 300 {
		findings = append(findings, "file is large; consider splitting it")
	}
	if branches > 20 {
		findings = append(findings, "high branching density; extract helper functions")
	}
	if comment == 0 && code > 50 {
		findings = append(findings, "no comments found in a non-trivial file")
	}

	summary := fmt.Sprintf("analyzed %d lines (%d code, %d comment, %d blank), %d branch points",
		len(lines), code, comment, blank, branches)
	if len(findings) > 0 {
		summary += "; findings: " + strings.Join(findings, "; ")
	}

	return &domain.AgentResult{
		Success: true,
		Output:  summary,
		Data: map[string]string{
			"lines":    strconv.Itoa(len(lines)),
			"code":     strconv.Itoa(code),
			"comments": strconv.Itoa(comment),
			"branches": strconv.Itoa(branches),
			"findings": strconv.Itoa(len(findings)),
		},
	}, nil
}

var _ domain.Agent = (*Analyzer)(nil)
