package routing

import (
	"context"
	"errors"
	"testing"
	"time"

	"switchboard-ai/internal/domain"
	"switchboard-ai/internal/infra/logger"
)

// scriptedProvider returns canned replies in order.
type scriptedProvider struct {
	replies []string
	calls   int
	err     error
}

func (p *scriptedProvider) Chat(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	reply := p.replies[len(p.replies)-1]
	if p.calls < len(p.replies) {
		reply = p.replies[p.calls]
	}
	p.calls++
	return &domain.ChatResponse{
		Message: domain.Message{
			Role:      domain.RoleAssistant,
			Content:   reply,
			Timestamp: time.Now(),
		},
	}, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

func supervisorProfile() domain.AgentProfile {
	return domain.AgentProfile{
		Name:         "Coordinator",
		SystemPrompt: "You coordinate a team of workers.",
	}
}

func TestNewSupervisorValidation(t *testing.T) {
	if _, err := NewSupervisor(supervisorProfile(), nil, &scriptedProvider{}, logger.Discard()); !errors.Is(err, domain.ErrInvalidRoute) {
		t.Errorf("no members: %v", err)
	}
	if _, err := NewSupervisor(supervisorProfile(), []string{RouteFinish}, &scriptedProvider{}, logger.Discard()); !errors.Is(err, domain.ErrInvalidRoute) {
		t.Errorf("FINISH as member: %v", err)
	}
	if _, err := NewSupervisor(supervisorProfile(), []string{"Coordinator"}, &scriptedProvider{}, logger.Discard()); !errors.Is(err, domain.ErrInvalidRoute) {
		t.Errorf("self as member: %v", err)
	}
}

func TestNextHopSelectsMember(t *testing.T) {
	provider := &scriptedProvider{replies: []string{`{"next": "Researcher"}`}}
	sup, err := NewSupervisor(supervisorProfile(), []string{"Researcher", "Writer"}, provider, logger.Discard())
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}

	next, err := sup.NextHop(context.Background(), nil)
	if err != nil {
		t.Fatalf("NextHop: %v", err)
	}
	if next != "Researcher" {
		t.Errorf("got %q", next)
	}
}

func TestNextHopFinish(t *testing.T) {
	provider := &scriptedProvider{replies: []string{`{"next": "FINISH"}`}}
	sup, err := NewSupervisor(supervisorProfile(), []string{"Researcher"}, provider, logger.Discard())
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}

	next, err := sup.NextHop(context.Background(), nil)
	if err != nil {
		t.Fatalf("NextHop: %v", err)
	}
	if next != RouteFinish {
		t.Errorf("got %q", next)
	}
}

func TestNextHopToleratesSurroundingProse(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		"Sure! Here is my decision:\n```json\n{\"next\": \"Writer\"}\n```\nLet me know.",
	}}
	sup, err := NewSupervisor(supervisorProfile(), []string{"Researcher", "Writer"}, provider, logger.Discard())
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}

	next, err := sup.NextHop(context.Background(), nil)
	if err != nil {
		t.Fatalf("NextHop: %v", err)
	}
	if next != "Writer" {
		t.Errorf("got %q", next)
	}
}

func TestNextHopOutOfSetLabel(t *testing.T) {
	provider := &scriptedProvider{replies: []string{`{"next": "Impostor"}`}}
	sup, err := NewSupervisor(supervisorProfile(), []string{"Researcher"}, provider, logger.Discard())
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}

	_, err = sup.NextHop(context.Background(), nil)
	if !errors.Is(err, domain.ErrInvalidRoute) {
		t.Errorf("out-of-set label: %v", err)
	}
}

func TestNextHopGarbageOutput(t *testing.T) {
	for _, garbage := range []string{"I think Researcher should go", "", `{"next": ""}`, "{broken"} {
		provider := &scriptedProvider{replies: []string{garbage}}
		sup, err := NewSupervisor(supervisorProfile(), []string{"Researcher"}, provider, logger.Discard())
		if err != nil {
			t.Fatalf("NewSupervisor: %v", err)
		}

		if _, err := sup.NextHop(context.Background(), nil); !errors.Is(err, domain.ErrInvalidRoute) {
			t.Errorf("garbage %q: %v", garbage, err)
		}
	}
}

func TestNextHopProviderError(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("boom")}
	sup, err := NewSupervisor(supervisorProfile(), []string{"Researcher"}, provider, logger.Discard())
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}

	if _, err := sup.NextHop(context.Background(), nil); err == nil {
		t.Error("want provider error surfaced")
	}
}
