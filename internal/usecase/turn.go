package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"switchboard-ai/internal/domain"
	"switchboard-ai/internal/infra/tracer"
	"switchboard-ai/internal/usecase/routing"
)

const (
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 10 * time.Second
	maxLLMAttempts = 3

	// maxSupervisorHops bounds one turn under the supervisor policy so a
	// supervisor that never emits FINISH cannot loop forever.
	maxSupervisorHops = 10
)

// Policy selects how a turn is routed to agents.
type Policy string

const (
	PolicySimilarity Policy = "similarity"
	PolicyPipeline   Policy = "pipeline"
	PolicySupervisor Policy = "supervisor"
)

// Thread is one live conversation: the authoritative in-memory transcript
// plus the agent currently holding the floor. Persistence is best-effort;
// a failed save never loses the thread.
type Thread struct {
	Conversation domain.Conversation
	CurrentAgent string
}

// TurnResult is what one completed turn hands back to the caller.
type TurnResult struct {
	Reply        string
	AgentName    string
	Switched     bool
	SwitchedFrom string
}

// TurnDeps carries the collaborators a TurnService needs.
type TurnDeps struct {
	Registry       *routing.Registry
	Recommender    *routing.Recommender
	Pipeline       *routing.Pipeline   // required for PolicyPipeline
	Supervisor     *routing.Supervisor // required for PolicySupervisor
	Provider       domain.LLMProvider
	ContextBuilder *ContextBuilder
	Classifier     *ErrorClassifier
	Conversations  domain.ConversationStore // optional
	Logger         *slog.Logger
}

// TurnService runs complete conversation turns: route the user message,
// build the prompt, call the LLM with retries, record the reply, and
// persist the transcript.
type TurnService struct {
	deps            TurnDeps
	policy          Policy
	switchThreshold float64
	saveAttempts    int
}

// NewTurnService creates a TurnService for the given policy.
func NewTurnService(deps TurnDeps, policy Policy, switchThreshold float64, saveAttempts int) *TurnService {
	if saveAttempts < 1 {
		saveAttempts = 1
	}
	return &TurnService{
		deps:            deps,
		policy:          policy,
		switchThreshold: switchThreshold,
		saveAttempts:    saveAttempts,
	}
}

// NewThread starts a fresh conversation for the given user.
func (s *TurnService) NewThread(user string) *Thread {
	now := time.Now()
	return &Thread{
		Conversation: domain.Conversation{
			ID:        ulid.Make().String(),
			User:      user,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// HandleTurn processes one user message on the thread and returns the
// assistant reply. An empty registry fails with ErrNoAgents before any
// LLM call; provider failures surface as a user-visible reply, not an
// error. The thread is mutated in place and saved best-effort.
func (s *TurnService) HandleTurn(ctx context.Context, thread *Thread, userInput string) (TurnResult, error) {
	ctx, span := tracer.StartSpan(ctx, "turn.handle",
		trace.WithAttributes(
			tracer.StringAttr("policy", string(s.policy)),
			tracer.StringAttr("conversation_id", thread.Conversation.ID),
		),
	)
	defer span.End()

	if len(s.deps.Registry.Agents()) == 0 {
		err := domain.NewDomainError("handle turn", domain.ErrNoAgents, "registry is empty")
		tracer.RecordError(span, err)
		return TurnResult{}, err
	}

	var (
		result TurnResult
		err    error
	)
	switch s.policy {
	case PolicyPipeline:
		result, err = s.runPipeline(ctx, thread, userInput)
	case PolicySupervisor:
		result, err = s.runSupervisor(ctx, thread, userInput)
	default:
		result, err = s.runSimilarity(ctx, thread, userInput)
	}
	if err != nil {
		tracer.RecordError(span, err)
		return TurnResult{}, err
	}

	s.saveThread(ctx, thread)
	tracer.SetOK(span)
	return result, nil
}

// runSimilarity routes by relevance: the recommender advises a switch, the
// service applies it and records the transition, and the active agent
// answers.
func (s *TurnService) runSimilarity(ctx context.Context, thread *Thread, userInput string) (TurnResult, error) {
	decision, err := s.deps.Recommender.ShouldSwitch(userInput, thread.CurrentAgent, s.switchThreshold)
	if err != nil {
		return TurnResult{}, err
	}

	var result TurnResult
	if decision.Switch && decision.RecommendedAgent != thread.CurrentAgent {
		if thread.CurrentAgent != "" {
			result.Switched = true
			result.SwitchedFrom = thread.CurrentAgent
			s.appendMessage(thread, domain.Message{
				Role: domain.RoleSystem,
				Content: fmt.Sprintf("Switched to %s (%s)",
					decision.RecommendedAgent, s.deps.Registry.ExpertiseSummary(decision.RecommendedAgent)),
				Timestamp: time.Now(),
			})
			s.deps.Logger.Info("agent switch",
				"from", thread.CurrentAgent,
				"to", decision.RecommendedAgent,
				"confidence", decision.Confidence)
		}
		thread.CurrentAgent = decision.RecommendedAgent
	}
	if thread.CurrentAgent == "" {
		thread.CurrentAgent = decision.RecommendedAgent
	}

	agent, err := s.deps.Registry.Get(thread.CurrentAgent)
	if err != nil {
		return TurnResult{}, err
	}

	prompt := s.deps.ContextBuilder.Build(thread.Conversation.Messages, agent, userInput)
	s.appendMessage(thread, domain.Message{
		Role:      domain.RoleUser,
		Content:   userInput,
		Timestamp: time.Now(),
	})

	reply := s.callAgent(ctx, agent, prompt)
	s.appendMessage(thread, reply)

	result.Reply = reply.Content
	result.AgentName = agent.Name
	return result, nil
}

// runPipeline feeds the user input through the fixed stage sequence. Each
// stage reply is recorded in the transcript; a halt sentinel surfaces that
// stage's reply to the user verbatim.
func (s *TurnService) runPipeline(ctx context.Context, thread *Thread, userInput string) (TurnResult, error) {
	if s.deps.Pipeline == nil {
		return TurnResult{}, domain.NewDomainError("handle turn", domain.ErrInvalidRoute, "no pipeline configured")
	}

	s.appendMessage(thread, domain.Message{
		Role:      domain.RoleUser,
		Content:   userInput,
		Timestamp: time.Now(),
	})

	state := s.deps.Pipeline.Start(userInput)
	var lastAgent string
	for !state.Done() {
		agent, err := s.deps.Registry.Get(state.Stage)
		if err != nil {
			return TurnResult{}, err
		}
		lastAgent = agent.Name

		prompt := []domain.Message{
			{Role: domain.RoleSystem, Content: agent.SystemPrompt, Timestamp: time.Now()},
			{Role: domain.RoleUser, Content: state.Input, Timestamp: time.Now()},
		}
		reply := s.callAgent(ctx, agent, prompt)
		s.appendMessage(thread, reply)

		state, err = s.deps.Pipeline.Advance(state, reply.Content)
		if err != nil {
			return TurnResult{}, err
		}
	}

	thread.CurrentAgent = lastAgent
	return TurnResult{Reply: state.Output, AgentName: lastAgent}, nil
}

// runSupervisor loops supervisor decisions until FINISH or the hop bound.
// An out-of-set label stays with the current agent instead of failing the
// turn.
func (s *TurnService) runSupervisor(ctx context.Context, thread *Thread, userInput string) (TurnResult, error) {
	if s.deps.Supervisor == nil {
		return TurnResult{}, domain.NewDomainError("handle turn", domain.ErrInvalidRoute, "no supervisor configured")
	}

	s.appendMessage(thread, domain.Message{
		Role:      domain.RoleUser,
		Content:   userInput,
		Timestamp: time.Now(),
	})
	// The prompt builder appends the user input itself, so each hop's
	// history is every message except this one. Earlier members' replies
	// accumulate after it and must flow into later members' prompts.
	userIdx := len(thread.Conversation.Messages) - 1

	var (
		lastReply string
		lastAgent string
	)
	for hop := 0; hop < maxSupervisorHops; hop++ {
		next, err := s.deps.Supervisor.NextHop(ctx, thread.Conversation.Messages)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidRoute) {
				s.deps.Logger.Warn("supervisor emitted invalid route, staying", "error", err)
				break
			}
			return TurnResult{}, err
		}
		if next == routing.RouteFinish {
			break
		}

		agent, err := s.deps.Registry.Get(next)
		if err != nil {
			return TurnResult{}, err
		}
		thread.CurrentAgent = agent.Name

		history := historyWithout(thread.Conversation.Messages, userIdx)
		prompt := s.deps.ContextBuilder.Build(history, agent, userInput)
		reply := s.callAgent(ctx, agent, prompt)
		s.appendMessage(thread, reply)

		lastReply = reply.Content
		lastAgent = agent.Name
	}

	if lastAgent == "" {
		// The supervisor finished without delegating. Answer with the
		// current or default agent so the user still gets a reply.
		agentName := thread.CurrentAgent
		if agentName == "" {
			name, err := s.deps.Recommender.BestAgent(userInput, "")
			if err != nil {
				return TurnResult{}, err
			}
			agentName = name
		}
		agent, err := s.deps.Registry.Get(agentName)
		if err != nil {
			return TurnResult{}, err
		}
		thread.CurrentAgent = agent.Name

		history := historyWithout(thread.Conversation.Messages, userIdx)
		prompt := s.deps.ContextBuilder.Build(history, agent, userInput)
		reply := s.callAgent(ctx, agent, prompt)
		s.appendMessage(thread, reply)
		lastReply = reply.Content
		lastAgent = agent.Name
	}

	return TurnResult{Reply: lastReply, AgentName: lastAgent}, nil
}

// historyWithout returns msgs with the element at idx removed. The input
// slice is not mutated.
func historyWithout(msgs []domain.Message, idx int) []domain.Message {
	out := make([]domain.Message, 0, len(msgs)-1)
	out = append(out, msgs[:idx]...)
	out = append(out, msgs[idx+1:]...)
	return out
}

// callAgent calls the provider with retries for retryable failures. It
// always returns an assistant message: on a final failure the content is
// the classified user-visible explanation.
func (s *TurnService) callAgent(ctx context.Context, agent domain.AgentProfile, prompt []domain.Message) domain.Message {
	req := ToChatRequest(agent, prompt)

	var lastClassified ClassifiedError
	for attempt := 0; attempt < maxLLMAttempts; attempt++ {
		resp, err := s.deps.Provider.Chat(ctx, req)
		if err == nil {
			msg := resp.Message
			msg.Role = domain.RoleAssistant
			msg.AgentName = agent.Name
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			return msg
		}

		lastClassified = s.deps.Classifier.Classify(err)
		if !lastClassified.Retryable() || attempt == maxLLMAttempts-1 {
			break
		}

		delay := retryBackoff(attempt)
		s.deps.Logger.Info("retrying LLM call after error",
			"agent", agent.Name, "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			lastClassified = s.deps.Classifier.Classify(ctx.Err())
			attempt = maxLLMAttempts
		}
	}

	s.deps.Logger.Error("LLM call failed",
		"agent", agent.Name, "kind", int(lastClassified.Kind), "error", lastClassified.Original)
	return domain.Message{
		Role:      domain.RoleAssistant,
		AgentName: agent.Name,
		Content:   lastClassified.UserMessage(),
		Timestamp: time.Now(),
	}
}

func (s *TurnService) appendMessage(thread *Thread, msg domain.Message) {
	thread.Conversation = thread.Conversation.Append(msg)
}

// saveThread persists the conversation with bounded exponential backoff.
// Failures are logged and dropped; the in-memory thread stays authoritative.
func (s *TurnService) saveThread(ctx context.Context, thread *Thread) {
	if s.deps.Conversations == nil {
		return
	}

	var lastErr error
	for attempt := 0; attempt < s.saveAttempts; attempt++ {
		if lastErr = s.deps.Conversations.Save(ctx, thread.Conversation); lastErr == nil {
			return
		}
		if attempt < s.saveAttempts-1 {
			select {
			case <-time.After(retryBackoff(attempt)):
			case <-ctx.Done():
				s.deps.Logger.Warn("conversation save abandoned",
					"conversation_id", thread.Conversation.ID, "error", ctx.Err())
				return
			}
		}
	}
	s.deps.Logger.Warn("conversation save failed, keeping in-memory transcript",
		"conversation_id", thread.Conversation.ID,
		"attempts", s.saveAttempts, "error", lastErr)
}

// retryBackoff computes exponential backoff with jitter.
func retryBackoff(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	// Add 0-25% jitter.
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}
