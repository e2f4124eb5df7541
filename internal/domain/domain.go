package domain

import "time"

// TaskStatus is the lifecycle state of a task. It also names the store bucket the task lives in.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusReview     TaskStatus = "review"
	StatusCompleted  TaskStatus = "completed"
	StatusBlocked    TaskStatus = "blocked"
)

// ActiveStatuses are the non-terminal states an agent still has to work on.
var ActiveStatuses = []TaskStatus{StatusPending, StatusInProgress, StatusReview}

// AllStatuses lists every task state in lifecycle order.
var AllStatuses = []TaskStatus{StatusPending, StatusInProgress, StatusReview, StatusCompleted, StatusBlocked}

func (s TaskStatus) Valid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusBlocked
}

type Task struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	AssignedTo  string     `json:"assigned_to"`
	CreatedBy   string     `json:"created_by"`
	Status      TaskStatus `json:"status" enum:"pending,in_progress,review,completed,blocked"`
	Priority    int        `json:"priority" minimum:"1" maximum:"5"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Message struct {
	ID                  string    `json:"id"`
	FromAgent           string    `json:"from_agent"`
	ToAgent             string    `json:"to_agent"`
	Subject             string    `json:"subject"`
	Content             string    `json:"content"`
	Timestamp           time.Time `json:"timestamp"`
	RequiresCEOApproval bool      `json:"requires_ceo_approval"`
}

type AgentStatus struct {
	Agent       string         `json:"agent"`
	State       string         `json:"state,omitempty"`
	CurrentTask string         `json:"current_task,omitempty"`
	Note        string         `json:"note,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Priority levels for supervisory notifications.
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityNormal   = "normal"
	PriorityInfo     = "info"
)

func ValidNotificationPriority(p string) bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityInfo:
		return true
	}
	return false
}

// Urgent reports whether a notification priority warrants an immediate fan-out signal.
func Urgent(p string) bool {
	return p == PriorityCritical || p == PriorityHigh
}

type Notification struct {
	ID        string    `json:"id"`
	Priority  string    `json:"priority" enum:"critical,high,normal,info"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type Report struct {
	Date                string        `json:"date"`
	GeneratedAt         time.Time     `json:"generated_at"`
	CompletedToday      []Task        `json:"completed_today"`
	InProgress          []Task        `json:"in_progress"`
	Blocked             []Task        `json:"blocked"`
	PendingHighPriority []Task        `json:"pending_high_priority"`
	TeamStatus          []AgentStatus `json:"team_status"`
	DecisionsNeeded     []Message     `json:"decisions_needed"`
}

type ProductSpec struct {
	Name      string         `json:"name"`
	Body      map[string]any `json:"body"`
	UpdatedBy string         `json:"updated_by,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Verdicts a supervisor can give on an escalated message.
const (
	VerdictApprove = "approve"
	VerdictReject  = "reject"
	VerdictModify  = "modify"
)

type Decision struct {
	ID             string    `json:"id"`
	Message        Message   `json:"message"`
	Verdict        string    `json:"verdict" enum:"approve,reject,modify"`
	Note           string    `json:"note,omitempty"`
	DecidedBy      string    `json:"decided_by"`
	DecidedAt      time.Time `json:"decided_at"`
	FollowUpTaskID string    `json:"follow_up_task_id,omitempty"`
}
