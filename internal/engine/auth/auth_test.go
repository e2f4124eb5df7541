package auth

import (
	"errors"
	"fmt"
	"testing"

	"huddle/internal/domain"
)

func TestCanTransition(t *testing.T) {
	p := Policy{Supervisor: "ceo"}
	task := domain.Task{ID: "task_1", AssignedTo: "qa"}

	if err := p.CanTransition("qa", task); err != nil {
		t.Fatalf("assignee denied: %v", err)
	}
	if err := p.CanTransition("ceo", task); err != nil {
		t.Fatalf("supervisor denied: %v", err)
	}
	err := p.CanTransition("pm", task)
	if !errors.Is(err, domain.ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
	pe, ok := AsPermission(fmt.Errorf("wrapped: %w", err))
	if !ok || pe.Actor != "pm" || pe.AssignedTo != "qa" {
		t.Fatalf("unexpected permission error %+v", pe)
	}
	err = p.CanTransition("", task)
	if pe, ok := AsPermission(err); !ok || pe.Actor != "" || pe.TaskID != "task_1" {
		t.Fatalf("expected permission error for empty actor, got %v", err)
	}
	if err := p.CanTransition("", domain.Task{ID: "task_2"}); !errors.Is(err, domain.ErrPermission) {
		t.Fatalf("empty actor must not match an empty assignee, got %v", err)
	}
}

func TestCanDecide(t *testing.T) {
	p := Policy{Supervisor: "ceo"}
	if err := p.CanDecide("ceo"); err != nil {
		t.Fatalf("supervisor denied: %v", err)
	}
	if err := p.CanDecide("pm"); !errors.Is(err, domain.ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if err := p.CanDecide(""); !errors.Is(err, domain.ErrPermission) {
		t.Fatalf("expected permission error for empty actor, got %v", err)
	}
	if (Policy{}).IsSupervisor("") {
		t.Fatalf("empty actor must never be supervisor")
	}
}
