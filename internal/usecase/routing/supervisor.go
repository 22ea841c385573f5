package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"switchboard-ai/internal/domain"
)

// RouteFinish is the sentinel label a supervisor emits to end the loop.
const RouteFinish = "FINISH"

// Supervisor implements the supervisor-decision policy: a designated
// controlling agent is shown the conversation and a closed set of next-hop
// labels (member names plus FINISH), and its structured output selects the
// next hop. Labels outside the declared set fail with ErrInvalidRoute.
type Supervisor struct {
	profile  domain.AgentProfile
	members  []string
	provider domain.LLMProvider
	logger   *slog.Logger
}

// NewSupervisor creates a Supervisor. members must not contain the
// supervisor itself or the FINISH sentinel.
func NewSupervisor(profile domain.AgentProfile, members []string, provider domain.LLMProvider, logger *slog.Logger) (*Supervisor, error) {
	if len(members) == 0 {
		return nil, domain.NewDomainError("supervisor", domain.ErrInvalidRoute, "no members declared")
	}
	for _, m := range members {
		if m == RouteFinish || m == profile.Name {
			return nil, domain.NewDomainError("supervisor", domain.ErrInvalidRoute,
				fmt.Sprintf("member %q shadows a reserved label", m))
		}
	}
	return &Supervisor{profile: profile, members: members, provider: provider, logger: logger}, nil
}

// Members returns the declared next-hop labels, excluding FINISH.
func (s *Supervisor) Members() []string {
	out := make([]string, len(s.members))
	copy(out, s.members)
	return out
}

// supervisorDecision is the structured output the supervisor must produce.
type supervisorDecision struct {
	Next string `json:"next"`
}

// NextHop asks the supervisor which member should act next given the
// conversation so far. It returns a member name, or RouteFinish when the
// supervisor decides the team is done.
func (s *Supervisor) NextHop(ctx context.Context, conversation []domain.Message) (string, error) {
	msgs := make([]domain.Message, 0, len(conversation)+1)
	msgs = append(msgs, domain.Message{
		Role:      domain.RoleSystem,
		Content:   s.decisionPrompt(),
		Timestamp: time.Now(),
	})
	msgs = append(msgs, conversation...)

	resp, err := s.provider.Chat(ctx, domain.ChatRequest{
		Model:       s.profile.Model,
		Messages:    msgs,
		Temperature: s.profile.Temperature,
		MaxTokens:   s.profile.MaxTokens,
	})
	if err != nil {
		return "", domain.WrapOp("supervisor decision", err)
	}

	label, err := parseDecision(resp.Message.Content)
	if err != nil {
		return "", err
	}

	if label == RouteFinish {
		s.logger.Debug("supervisor finished", "supervisor", s.profile.Name)
		return RouteFinish, nil
	}
	for _, m := range s.members {
		if m == label {
			s.logger.Debug("supervisor selected member", "member", label)
			return label, nil
		}
	}
	return "", domain.NewDomainError("supervisor decision", domain.ErrInvalidRoute, label)
}

// decisionPrompt renders the closed label set into the supervisor's
// system prompt.
func (s *Supervisor) decisionPrompt() string {
	var sb strings.Builder
	sb.WriteString(s.profile.SystemPrompt)
	sb.WriteString("\n\nYou are coordinating the following workers: ")
	sb.WriteString(strings.Join(s.members, ", "))
	sb.WriteString(".\nGiven the conversation so far, respond with the next worker to act.")
	sb.WriteString(" If no worker is needed, respond with " + RouteFinish + ".")
	sb.WriteString("\nRespond with JSON only, exactly: {\"next\": \"<worker or " + RouteFinish + ">\"}")
	return sb.String()
}

// parseDecision extracts the {"next": ...} object from the supervisor
// reply, tolerating surrounding prose and markdown fences.
func parseDecision(content string) (string, error) {
	raw := content
	if start := strings.IndexByte(raw, '{'); start >= 0 {
		if end := strings.LastIndexByte(raw, '}'); end > start {
			raw = raw[start : end+1]
		}
	}

	var d supervisorDecision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return "", domain.NewDomainError("supervisor decision", domain.ErrInvalidRoute,
			fmt.Sprintf("unparseable output: %.80s", content))
	}
	d.Next = strings.TrimSpace(d.Next)
	if d.Next == "" {
		return "", domain.NewDomainError("supervisor decision", domain.ErrInvalidRoute, "empty label")
	}
	return d.Next, nil
}
