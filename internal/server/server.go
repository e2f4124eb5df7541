package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"huddle/internal/domain"
	"huddle/internal/engine"
	"huddle/internal/engine/auth"
)

// ActorHeader names the calling agent. There is no authentication behind it.
const ActorHeader = "X-Actor-Id"

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Log      log.FieldLogger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"task task_1: not found"`
	Details map[string]any `json:"details,omitempty"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the workspace API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Log
	if logger == nil {
		logger = log.StandardLogger()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// Schema/request validation errors are plain bad requests here.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			msgs := make([]string, 0, len(errs))
			for _, err := range errs {
				msgs = append(msgs, err.Error())
			}
			details = map[string]any{"errors": msgs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger))
	hcfg := huma.DefaultConfig("Huddle API", "1.0.0")
	hcfg.OpenAPIPath = basePath + "/openapi"
	hcfg.DocsPath = basePath + "/docs"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerTasks(group, cfg.Engine)
	registerMessages(group, cfg.Engine)
	registerStatus(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerSpecs(group, cfg.Engine)
	registerApprovals(group, cfg.Engine)

	return router, nil
}

func requestLogger(logger log.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.WithFields(log.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   ww.Status(),
				"actor":    r.Header.Get(ActorHeader),
				"duration": time.Since(start).String(),
			}).Debug("request")
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// statusForKind maps error kinds onto HTTP status codes.
var statusForKind = map[domain.Kind]int{
	domain.KindInvalid:             http.StatusBadRequest,
	domain.KindPermission:          http.StatusForbidden,
	domain.KindNotFound:            http.StatusNotFound,
	domain.KindDuplicateID:         http.StatusConflict,
	domain.KindInvalidTransition:   http.StatusConflict,
	domain.KindStoreUnavailable:    http.StatusServiceUnavailable,
	domain.KindNotifierUnavailable: http.StatusServiceUnavailable,
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if pe, ok := auth.AsPermission(err); ok {
		details := map[string]any{"actor": pe.Actor}
		if pe.TaskID != "" {
			details["task_id"] = pe.TaskID
			details["assigned_to"] = pe.AssignedTo
		}
		return newAPIError(http.StatusForbidden, string(domain.KindPermission), err.Error(), details)
	}
	kind := domain.KindOf(err)
	if status, ok := statusForKind[kind]; ok {
		return newAPIError(status, string(kind), err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

var stdErrors = []int{
	http.StatusBadRequest,
	http.StatusNotFound,
	http.StatusServiceUnavailable,
	http.StatusInternalServerError,
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		return &healthOutput{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        append([]int{http.StatusConflict}, stdErrors...),
	}, func(ctx context.Context, input *struct {
		ActorID string `header:"X-Actor-Id"`
		Body    CreateTaskRequest
	}) (*taskOutput, error) {
		createdBy := input.Body.CreatedBy
		if createdBy == "" {
			createdBy = input.ActorID
		}
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			ID:          input.Body.ID,
			Type:        input.Body.Type,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			AssignedTo:  input.Body.AssignedTo,
			CreatedBy:   createdBy,
			Priority:    input.Body.Priority,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks by status",
		Errors:      stdErrors,
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" doc:"comma-separated statuses; all when empty"`
	}) (*tasksOutput, error) {
		var statuses []domain.TaskStatus
		for _, s := range strings.Split(input.Status, ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, domain.TaskStatus(s))
			}
		}
		tasks, err := e.ListTasks(ctx, statuses...)
		if err != nil {
			return nil, handleError(err)
		}
		return &tasksOutput{Body: nonNilSlice(tasks)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      stdErrors,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*taskOutput, error) {
		t, err := e.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/transition",
		Summary:     "Move a task to a new status",
		Errors:      append([]int{http.StatusForbidden, http.StatusConflict}, stdErrors...),
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		ActorID string `header:"X-Actor-Id"`
		Body    TransitionRequest
	}) (*taskOutput, error) {
		t, err := e.Transition(ctx, input.ID, domain.TaskStatus(input.Body.Status), input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-agent-tasks",
		Method:      http.MethodGet,
		Path:        "/agents/{agent}/tasks",
		Summary:     "Open tasks for an agent, most urgent first",
		Errors:      stdErrors,
	}, func(ctx context.Context, input *struct {
		Agent string `path:"agent"`
	}) (*tasksOutput, error) {
		tasks, err := e.ListForAgent(ctx, input.Agent)
		if err != nil {
			return nil, handleError(err)
		}
		return &tasksOutput{Body: nonNilSlice(tasks)}, nil
	})
}

func registerMessages(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "send-message",
		Method:        http.MethodPost,
		Path:          "/messages",
		Summary:       "Send a message",
		DefaultStatus: http.StatusCreated,
		Errors:        stdErrors,
	}, func(ctx context.Context, input *struct {
		ActorID string `header:"X-Actor-Id"`
		Body    SendMessageRequest
	}) (*sendOutput, error) {
		from := input.Body.FromAgent
		if from == "" {
			from = input.ActorID
		}
		res, err := e.Send(ctx, domain.Message{
			FromAgent:           from,
			ToAgent:             input.Body.ToAgent,
			Subject:             input.Body.Subject,
			Content:             input.Body.Content,
			RequiresCEOApproval: input.Body.RequiresCEOApproval,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &sendOutput{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "receive-messages",
		Method:      http.MethodPost,
		Path:        "/agents/{agent}/messages/receive",
		Summary:     "Consume an agent's messages",
		Errors:      stdErrors,
	}, func(ctx context.Context, input *struct {
		Agent string `path:"agent"`
	}) (*messagesOutput, error) {
		msgs, err := e.Receive(ctx, input.Agent)
		if err != nil {
			return nil, handleError(err)
		}
		return &messagesOutput{Body: nonNilSlice(msgs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "peek-messages",
		Method:      http.MethodGet,
		Path:        "/agents/{agent}/messages",
		Summary:     "List an agent's messages without consuming them",
		Errors:      stdErrors,
	}, func(ctx context.Context, input *struct {
		Agent string `path:"agent"`
	}) (*messagesOutput, error) {
		msgs, err := e.Peek(ctx, input.Agent)
		if err != nil {
			return nil, handleError(err)
		}
		return &messagesOutput{Body: nonNilSlice(msgs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "broadcast",
		Method:      http.MethodPost,
		Path:        "/broadcasts",
		Summary:     "Message every roster member except the sender",
		Errors:      stdErrors,
	}, func(ctx context.Context, input *struct {
		ActorID string `header:"X-Actor-Id"`
		Body    BroadcastRequest
	}) (*broadcastOutput, error) {
		from := input.Body.FromAgent
		if from == "" {
			from = input.ActorID
		}
		res, err := e.Broadcast(ctx, from, input.Body.Subject, input.Body.Content)
		if err != nil {
			return nil, handleError(err)
		}
		return &broadcastOutput{Body: nonNilSlice(res)}, nil
	})
}

func registerStatus(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "put-status",
		Method:      http.MethodPut,
		Path:        "/agents/{agent}/status",
		Summary:     "Replace an agent's status snapshot",
		Errors:      stdErrors,
	}, func(ctx context.Context, input *struct {
		Agent string `path:"agent"`
		Body  StatusRequest
	}) (*statusOutput, error) {
		st, err := e.UpdateStatus(ctx, input.Agent, domain.AgentStatus{
			State:       input.Body.State,
			CurrentTask: input.Body.CurrentTask,
			Note:        input.Body.Note,
			Extra:       input.Body.Extra,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &statusOutput{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "team-status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Every agent's latest status",
		Errors:      stdErrors,
	}, func(ctx context.Context, _ *struct{}) (*teamOutput, error) {
		sts, err := e.TeamStatus(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &teamOutput{Body: nonNilSlice(sts)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "notify",
		Method:        http.MethodPost,
		Path:          "/notifications",
		Summary:       "Append a supervisory notification",
		DefaultStatus: http.StatusCreated,
		Errors:        stdErrors,
	}, func(ctx context.Context, input *struct {
		Body NotifyRequest
	}) (*notificationOutput, error) {
		priority := input.Body.Priority
		if priority == "" {
			priority = domain.PriorityNormal
		}
		n, err := e.Notify(ctx, input.Body.Message, priority)
		if err != nil {
			return nil, handleError(err)
		}
		return &notificationOutput{Body: n}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "Newest notifications first",
		Errors:      stdErrors,
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" minimum:"0" doc:"0 returns all"`
	}) (*notificationsOutput, error) {
		ns, err := e.Notifications(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &notificationsOutput{Body: nonNilSlice(ns)}, nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "generate-daily-report",
		Method:      http.MethodPost,
		Path:        "/reports/daily",
		Summary:     "Generate (or regenerate) today's report",
		Errors:      stdErrors,
	}, func(ctx context.Context, _ *struct{}) (*reportOutput, error) {
		rep, err := e.DailyReport(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &reportOutput{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/reports",
		Summary:     "Dates with a stored report",
		Errors:      stdErrors,
	}, func(ctx context.Context, _ *struct{}) (*reportDatesOutput, error) {
		dates, err := e.ListReports(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &reportDatesOutput{Body: nonNilSlice(dates)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/reports/{date}",
		Summary:     "Get the report for a date",
		Errors:      stdErrors,
	}, func(ctx context.Context, input *struct {
		Date string `path:"date" example:"2024-05-01"`
	}) (*reportOutput, error) {
		rep, err := e.GetReport(ctx, input.Date)
		if err != nil {
			return nil, handleError(err)
		}
		return &reportOutput{Body: rep}, nil
	})
}

func registerSpecs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "put-spec",
		Method:      http.MethodPut,
		Path:        "/specs/{name}",
		Summary:     "Store a product spec",
		Errors:      stdErrors,
	}, func(ctx context.Context, input *struct {
		Name    string `path:"name"`
		ActorID string `header:"X-Actor-Id"`
		Body    SpecRequest
	}) (*specOutput, error) {
		spec, err := e.SaveSpec(ctx, input.Name, input.Body.Body, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &specOutput{Body: spec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-specs",
		Method:      http.MethodGet,
		Path:        "/specs",
		Summary:     "List product specs",
		Errors:      stdErrors,
	}, func(ctx context.Context, _ *struct{}) (*specsOutput, error) {
		specs, err := e.ListSpecs(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &specsOutput{Body: nonNilSlice(specs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-spec",
		Method:      http.MethodGet,
		Path:        "/specs/{name}",
		Summary:     "Get a product spec",
		Errors:      stdErrors,
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
	}) (*specOutput, error) {
		spec, err := e.GetSpec(ctx, input.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &specOutput{Body: spec}, nil
	})
}

func registerApprovals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-approvals",
		Method:      http.MethodGet,
		Path:        "/approvals",
		Summary:     "Escalated messages waiting for a decision",
		Errors:      stdErrors,
	}, func(ctx context.Context, _ *struct{}) (*messagesOutput, error) {
		ms, err := e.Approvals(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &messagesOutput{Body: nonNilSlice(ms)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decide-approval",
		Method:      http.MethodPost,
		Path:        "/approvals/{id}/decision",
		Summary:     "Record the supervisor's verdict",
		Errors:      append([]int{http.StatusForbidden, http.StatusConflict}, stdErrors...),
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		ActorID string `header:"X-Actor-Id"`
		Body    DecisionRequest
	}) (*decisionOutput, error) {
		d, err := e.Decide(ctx, input.ID, input.Body.Verdict, input.Body.Note, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &decisionOutput{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-decisions",
		Method:      http.MethodGet,
		Path:        "/decisions",
		Summary:     "Recorded decisions",
		Errors:      stdErrors,
	}, func(ctx context.Context, _ *struct{}) (*decisionsOutput, error) {
		ds, err := e.Decisions(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &decisionsOutput{Body: nonNilSlice(ds)}, nil
	})
}
