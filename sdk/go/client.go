package huddlesdk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

var codec = sonic.ConfigStd

// Client is a minimal Huddle HTTP API client. ActorID is sent as X-Actor-Id on every request.
type Client struct {
	BaseURL    string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, actorID string) *Client {
	return &Client{
		BaseURL: baseURL,
		ActorID: actorID,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model.
type Task struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	AssignedTo  string    `json:"assigned_to"`
	CreatedBy   string    `json:"created_by"`
	Status      string    `json:"status"`
	Priority    int       `json:"priority"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewTask holds the fields accepted when creating a task. Zero values take server defaults.
type NewTask struct {
	ID          string `json:"id,omitempty"`
	Type        string `json:"type,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	AssignedTo  string `json:"assigned_to"`
	Priority    int    `json:"priority,omitempty"`
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

// SendResult is the outcome of a send; Escalated is true once the supervisory copy exists.
type SendResult struct {
	Message   Message `json:"message"`
	Escalated bool    `json:"escalated"`
}

type AgentStatus struct {
	Agent       string         `json:"agent"`
	State       string         `json:"state,omitempty"`
	CurrentTask string         `json:"current_task,omitempty"`
	Note        string         `json:"note,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type Notification struct {
	ID        string    `json:"id"`
	Priority  string    `json:"priority"`
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

type Decision struct {
	ID             string    `json:"id"`
	Message        Message   `json:"message"`
	Verdict        string    `json:"verdict"`
	Note           string    `json:"note,omitempty"`
	DecidedBy      string    `json:"decided_by"`
	DecidedAt      time.Time `json:"decided_at"`
	FollowUpTaskID string    `json:"follow_up_task_id,omitempty"`
}

// APIError wraps non-2xx responses. Code carries the server's error code when the body had one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, t NewTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", t, &resp)
	return resp, err
}

func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListTasks lists tasks in the given statuses, or all tasks when none are given.
func (c *Client) ListTasks(ctx context.Context, statuses ...string) ([]Task, error) {
	endpoint := "tasks"
	if len(statuses) > 0 {
		endpoint += "?status=" + url.QueryEscape(strings.Join(statuses, ","))
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AgentTasks returns the agent's open tasks, most urgent first.
func (c *Client) AgentTasks(ctx context.Context, agent string) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("agents/%s/tasks", url.PathEscape(agent)), nil, &resp)
	return resp, err
}

// Move transitions a task as the client's actor.
func (c *Client) Move(ctx context.Context, id, status string) (Task, error) {
	var resp Task
	body := map[string]any{"status": status}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/transition", url.PathEscape(id)), body, &resp)
	return resp, err
}

// Send sends a message from the client's actor.
func (c *Client) Send(ctx context.Context, to, subject, content string, requiresApproval bool) (SendResult, error) {
	body := map[string]any{
		"to_agent":              to,
		"subject":               subject,
		"content":               content,
		"requires_ceo_approval": requiresApproval,
	}
	var resp SendResult
	err := c.do(ctx, http.MethodPost, "messages", body, &resp)
	return resp, err
}

// Receive consumes the agent's pending messages.
func (c *Client) Receive(ctx context.Context, agent string) ([]Message, error) {
	var resp []Message
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("agents/%s/messages/receive", url.PathEscape(agent)), nil, &resp)
	return resp, err
}

func (c *Client) Peek(ctx context.Context, agent string) ([]Message, error) {
	var resp []Message
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("agents/%s/messages", url.PathEscape(agent)), nil, &resp)
	return resp, err
}

func (c *Client) Broadcast(ctx context.Context, subject, content string) ([]SendResult, error) {
	body := map[string]any{"subject": subject, "content": content}
	var resp []SendResult
	err := c.do(ctx, http.MethodPost, "broadcasts", body, &resp)
	return resp, err
}

// SetStatus replaces the client actor's status snapshot.
func (c *Client) SetStatus(ctx context.Context, st AgentStatus) (AgentStatus, error) {
	body := map[string]any{
		"state":        st.State,
		"current_task": st.CurrentTask,
		"note":         st.Note,
	}
	if len(st.Extra) > 0 {
		body["extra"] = st.Extra
	}
	var resp AgentStatus
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("agents/%s/status", url.PathEscape(c.ActorID)), body, &resp)
	return resp, err
}

func (c *Client) TeamStatus(ctx context.Context) ([]AgentStatus, error) {
	var resp []AgentStatus
	err := c.do(ctx, http.MethodGet, "status", nil, &resp)
	return resp, err
}

func (c *Client) Notify(ctx context.Context, message, priority string) (Notification, error) {
	body := map[string]any{"message": message}
	if priority != "" {
		body["priority"] = priority
	}
	var resp Notification
	err := c.do(ctx, http.MethodPost, "notifications", body, &resp)
	return resp, err
}

// Notifications returns the newest notifications first; limit <= 0 returns all.
func (c *Client) Notifications(ctx context.Context, limit int) ([]Notification, error) {
	endpoint := "notifications"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Notification
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) DailyReport(ctx context.Context) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodPost, "reports/daily", nil, &resp)
	return resp, err
}

func (c *Client) Report(ctx context.Context, date string) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodGet, "reports/"+url.PathEscape(date), nil, &resp)
	return resp, err
}

func (c *Client) ReportDates(ctx context.Context) ([]string, error) {
	var resp []string
	err := c.do(ctx, http.MethodGet, "reports", nil, &resp)
	return resp, err
}

func (c *Client) PutSpec(ctx context.Context, name string, body map[string]any) (ProductSpec, error) {
	var resp ProductSpec
	err := c.do(ctx, http.MethodPut, "specs/"+url.PathEscape(name), map[string]any{"body": body}, &resp)
	return resp, err
}

func (c *Client) GetSpec(ctx context.Context, name string) (ProductSpec, error) {
	var resp ProductSpec
	err := c.do(ctx, http.MethodGet, "specs/"+url.PathEscape(name), nil, &resp)
	return resp, err
}

func (c *Client) ListSpecs(ctx context.Context) ([]ProductSpec, error) {
	var resp []ProductSpec
	err := c.do(ctx, http.MethodGet, "specs", nil, &resp)
	return resp, err
}

// Approvals lists escalated messages waiting for a decision.
func (c *Client) Approvals(ctx context.Context) ([]Message, error) {
	var resp []Message
	err := c.do(ctx, http.MethodGet, "approvals", nil, &resp)
	return resp, err
}

// Decide records a verdict; only the supervisor's actor id is accepted.
func (c *Client) Decide(ctx context.Context, approvalID, verdict, note string) (Decision, error) {
	body := map[string]any{"verdict": verdict}
	if note != "" {
		body["note"] = note
	}
	var resp Decision
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("approvals/%s/decision", url.PathEscape(approvalID)), body, &resp)
	return resp, err
}

func (c *Client) Decisions(ctx context.Context) ([]Decision, error) {
	var resp []Decision
	err := c.do(ctx, http.MethodGet, "decisions", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := codec.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if codec.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return codec.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// base includes the API version prefix. BaseURL may point at the host or already end in /v1.
func (c *Client) base() string {
	b := strings.TrimRight(c.BaseURL, "/")
	if !strings.HasSuffix(b, "/v1") {
		b += "/v1"
	}
	return b
}
