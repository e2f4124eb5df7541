package server

import (
	"huddle/internal/domain"
	"huddle/internal/engine"
)

// Request payloads

type CreateTaskRequest struct {
	ID          string `json:"id,omitempty"`
	Type        string `json:"type,omitempty"`
	Title       string `json:"title" minLength:"1"`
	Description string `json:"description,omitempty"`
	AssignedTo  string `json:"assigned_to" minLength:"1"`
	CreatedBy   string `json:"created_by,omitempty"`
	Priority    int    `json:"priority,omitempty" minimum:"0" maximum:"5" doc:"1-5, higher is more urgent; 0 means the default of 3"`
}

type TransitionRequest struct {
	Status string `json:"status" enum:"pending,in_progress,review,completed,blocked"`
}

type SendMessageRequest struct {
	FromAgent           string `json:"from_agent,omitempty" doc:"defaults to the X-Actor-Id header"`
	ToAgent             string `json:"to_agent" minLength:"1"`
	Subject             string `json:"subject,omitempty"`
	Content             string `json:"content,omitempty"`
	RequiresCEOApproval bool   `json:"requires_ceo_approval,omitempty"`
}

type BroadcastRequest struct {
	FromAgent string `json:"from_agent,omitempty" doc:"defaults to the X-Actor-Id header"`
	Subject   string `json:"subject,omitempty"`
	Content   string `json:"content,omitempty"`
}

type StatusRequest struct {
	State       string         `json:"state,omitempty"`
	CurrentTask string         `json:"current_task,omitempty"`
	Note        string         `json:"note,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

type NotifyRequest struct {
	Message  string `json:"message" minLength:"1"`
	Priority string `json:"priority,omitempty" enum:"critical,high,normal,info"`
}

type SpecRequest struct {
	Body map[string]any `json:"body"`
}

type DecisionRequest struct {
	Verdict string `json:"verdict" enum:"approve,reject,modify"`
	Note    string `json:"note,omitempty"`
}

// Response wrappers

type healthOutput struct {
	Body map[string]string
}

type taskOutput struct {
	Body domain.Task
}

type tasksOutput struct {
	Body []domain.Task
}

type sendOutput struct {
	Body engine.SendResult
}

type broadcastOutput struct {
	Body []engine.SendResult
}

type messagesOutput struct {
	Body []domain.Message
}

type statusOutput struct {
	Body domain.AgentStatus
}

type teamOutput struct {
	Body []domain.AgentStatus
}

type notificationOutput struct {
	Body domain.Notification
}

type notificationsOutput struct {
	Body []domain.Notification
}

type reportOutput struct {
	Body domain.Report
}

type reportDatesOutput struct {
	Body []string
}

type specOutput struct {
	Body domain.ProductSpec
}

type specsOutput struct {
	Body []domain.ProductSpec
}

type decisionOutput struct {
	Body domain.Decision
}

type decisionsOutput struct {
	Body []domain.Decision
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
