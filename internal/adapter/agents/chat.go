package agents

import (
	"context"
	"fmt"
	"strings"

	"switchboard/internal/domain"
)

// Chat is the catch-all conversational agent. It accepts every request, which
// makes it the registry's natural last resort when nothing more specific is
// willing.
type Chat struct{}

func NewChat() *Chat { return &Chat{} }

func (c *Chat) Name() string           { return "chat" }
func (c *Chat) Kind() domain.AgentKind { return domain.KindChat }

// CanHandle always accepts; chat is the terminal fallback.
func (c *Chat) CanHandle(req *domain.Request) bool { return req != nil }

func (c *Chat) Handle(ctx context.Context, req *domain.Request) (*domain.AgentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prompt := strings.TrimSpace(req.Prompt)
	var reply string
	switch {
	case prompt == "":
		reply = "I received an empty prompt. Tell me what you would like to do."
	case strings.HasSuffix(prompt, "?"):
		reply = fmt.Sprintf("Good question. I can't answer %q on my own, but I can route code to the analyzer, refactor, or formatter agents.", prompt)
	case req.Content != "":
		reply = fmt.Sprintf("I see %d bytes of attached content. Ask me to analyze, refactor, or format it.", len(req.Content))
	default:
		reply = fmt.Sprintf("Understood: %q. Attach code content if you want it analyzed, refactored, or formatted.", prompt)
	}

	return &domain.AgentResult{
		Success: true,
		Output:  reply,
		Data:    map[string]string{"prompt_len": fmt.Sprintf("%d", len(prompt))},
	}, nil
}

var _ domain.Agent = (*Chat)(nil)
