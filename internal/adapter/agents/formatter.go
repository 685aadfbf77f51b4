package agents

import (
	"context"
	"strconv"
	"strings"

	"switchboard/internal/domain"
)

// Formatter normalizes whitespace in code content: trailing spaces are
// stripped, runs of blank lines are collapsed, and the file gains a final
// newline. Language-aware reformatting stays with external tooling; this
// agent only fixes what is unambiguous in any language.
type Formatter struct{}

func NewFormatter() *Formatter { return &Formatter{} }

func (f *Formatter) Name() string           { return "formatter" }
func (f *Formatter) Kind() domain.AgentKind { return domain.KindFormatter }

func (f *Formatter) CanHandle(req *domain.Request) bool {
	return req != nil && req.Content != ""
}

func (f *Formatter) Handle(ctx context.Context, req *domain.Request) (*domain.AgentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lines := strings.Split(req.Content, "\n")
	out := make([]string, 0, len(lines))
	changed := 0
	blankRun := 0

	for _, line := range lines {
		stripped := strings.TrimRight(line, " \t")
		if stripped != line {
			changed++
		}
		if strings.TrimSpace(stripped) == "" {
			blankRun++
			if blankRun > 1 {
				changed++
				continue
			}
			out = append(out, "")
			continue
		}
		blankRun = 0
		out = append(out, stripped)
	}

	// Trim trailing blank lines, then terminate with exactly one newline.
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
		changed++
	}
	formatted := strings.Join(out, "\n") + "\n"
	if formatted != req.Content {
		changed++
	}

	return &domain.AgentResult{
		Success: true,
		Output:  formatted,
		Data: map[string]string{
			"changes": strconv.Itoa(changed),
			"lines":   strconv.Itoa(len(out)),
		},
	}, nil
}

var _ domain.Agent = (*Formatter)(nil)
