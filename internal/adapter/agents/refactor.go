package agents

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"switchboard/internal/domain"
)

// Refactor suggests mechanical cleanups for code content. It does not rewrite
// the code; it emits an ordered list of concrete suggestions so the caller
// stays in control of the edit.
type Refactor struct{}

func NewRefactor() *Refactor { return &Refactor{} }

func (r *Refactor) Name() string           { return "refactor" }
func (r *Refactor) Kind() domain.AgentKind { return domain.KindRefactor }

// CanHandle requires code content; a bare prompt gives nothing to refactor.
func (r *Refactor) CanHandle(req *domain.Request) bool {
	return req != nil && req.Content != ""
}

func (r *Refactor) Handle(ctx context.Context, req *domain.Request) (*domain.AgentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var suggestions []string
	lines := strings.Split(req.Content, "\n")

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if len(line) > 120 {
			suggestions = append(suggestions, fmt.Sprintf("line %d exceeds 120 characters; wrap or extract", i+1))
		}
		if strings.Contains(trimmed, "TODO") || strings.Contains(trimmed, "FIXME") {
			suggestions = append(suggestions, fmt.Sprintf("line %d carries an unresolved TODO/FIXME", i+1))
		}
		if depth := indentDepth(line); depth >= 5 {
			suggestions = append(suggestions, fmt.Sprintf("line %d is nested %d levels deep; flatten with early returns", i+1, depth))
		}
	}
	if dup := duplicatedLines(lines); dup > 0 {
		suggestions = append(suggestions, fmt.Sprintf("%d duplicated non-trivial lines; extract shared helpers", dup))
	}

	if len(suggestions) == 0 {
		return &domain.AgentResult{
			Success: true,
			Output:  "no refactoring suggestions; the code is already tidy",
			Data:    map[string]string{"suggestions": "0"},
		}, nil
	}

	return &domain.AgentResult{
		Success: true,
		Output:  fmt.Sprintf("%d suggestions:\n- %s", len(suggestions), strings.Join(suggestions, "\n- ")),
		Data:    map[string]string{"suggestions": strconv.Itoa(len(suggestions))},
	}, nil
}

// indentDepth counts leading indentation units, treating a tab or four spaces
// as one level.
func indentDepth(line string) int {
	depth := 0
	spaces := 0
	for _, r := range line {
		switch r {
		case '\t':
			depth++
		case ' ':
			spaces++
			if spaces == 4 {
				depth++
				spaces = 0
			}
		default:
			return depth
		}
	}
	return depth
}

// duplicatedLines counts lines of meaningful length that occur more than once.
func duplicatedLines(lines []string) int {
	seen := make(map[string]int)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) < 20 {
			continue
		}
		seen[trimmed]++
	}
	dup := 0
	for _, n := range seen {
		if n > 1 {
			dup += n - 1
		}
	}
	return dup
}

var _ domain.Agent = (*Refactor)(nil)
