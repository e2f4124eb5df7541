package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/internal/domain"
)

// run executes hd in-process against workspace and returns stdout and the error.
func run(t *testing.T, workspace string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(&out, &errOut)
	root.SetArgs(append([]string{"--workspace", workspace}, args...))
	err := root.Execute()
	return out.String(), err
}

func runJSON[T any](t *testing.T, workspace string, args ...string) T {
	t.Helper()
	out, err := run(t, workspace, append([]string{"--json"}, args...)...)
	require.NoError(t, err, out)
	var v T
	require.NoError(t, sonic.ConfigStd.UnmarshalFromString(out, &v), out)
	return v
}

func TestExitCodes(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errors.New("boom"), 1},
		{fmt.Errorf("x: %w", domain.ErrInvalid), 2},
		{domain.ErrInvalidTransition, 2},
		{domain.ErrNotFound, 3},
		{domain.ErrPermission, 4},
		{domain.ErrDuplicateID, 5},
		{domain.ErrStoreUnavailable, 6},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, exitCode(tc.err), "%v", tc.err)
	}
}

func TestTaskCommands(t *testing.T) {
	ws := t.TempDir()

	created := runJSON[domain.Task](t, ws, "--actor-id", "pm_claude", "task", "create",
		"--title", "Draft schematic", "--assigned-to", "hardware_claude", "--priority", "4")
	assert.Equal(t, domain.StatusPending, created.Status)
	assert.Equal(t, "pm_claude", created.CreatedBy)

	_, err := run(t, ws, "task", "create", "--id", created.ID, "--title", "again", "--assigned-to", "qa_claude")
	assert.Equal(t, 5, exitCode(err))

	_, err = run(t, ws, "--actor-id", "qa_claude", "task", "move", created.ID, "in_progress")
	assert.Equal(t, 4, exitCode(err))

	_, err = run(t, ws, "--actor-id", "hardware_claude", "task", "move", created.ID, "completed")
	assert.Equal(t, 2, exitCode(err))

	moved := runJSON[domain.Task](t, ws, "--actor-id", "hardware_claude", "task", "move", created.ID, "in_progress")
	assert.Equal(t, domain.StatusInProgress, moved.Status)

	listed := runJSON[[]domain.Task](t, ws, "task", "list", "--status", "in_progress")
	require.Len(t, listed, 1)

	none := runJSON[[]domain.Task](t, ws, "task", "list", "--agent", "qa_claude")
	assert.Empty(t, none)

	_, err = run(t, ws, "task", "get", "task_missing")
	assert.Equal(t, 3, exitCode(err))

	_, err = run(t, ws, "task", "get")
	assert.Equal(t, 2, exitCode(err))

	out, err := run(t, ws, "task", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Draft schematic")
}

func TestMessageAndApprovalCommands(t *testing.T) {
	ws := t.TempDir()

	_, err := run(t, ws, "--actor-id", "pm_claude", "msg", "send", "--to", "qa_claude", "--subject", "Budget", "--content", "more boards", "--approval")
	require.NoError(t, err)

	peeked := runJSON[[]domain.Message](t, ws, "msg", "peek", "--agent", "qa_claude")
	require.Len(t, peeked, 1)
	got := runJSON[[]domain.Message](t, ws, "--actor-id", "qa_claude", "msg", "recv")
	require.Len(t, got, 1)
	again := runJSON[[]domain.Message](t, ws, "--actor-id", "qa_claude", "msg", "recv")
	assert.Empty(t, again)

	approvals := runJSON[[]domain.Message](t, ws, "approval", "list")
	require.Len(t, approvals, 1)

	_, err = run(t, ws, "--actor-id", "pm_claude", "approval", "decide", approvals[0].ID, "approve")
	assert.Equal(t, 4, exitCode(err))

	d := runJSON[domain.Decision](t, ws, "--actor-id", "ceo", "approval", "decide", approvals[0].ID, "reject", "--note", "not this quarter")
	assert.Equal(t, domain.VerdictReject, d.Verdict)
	assert.Empty(t, d.FollowUpTaskID)

	_, err = run(t, ws, "--actor-id", "pm_claude", "msg", "broadcast", "--content", "standup")
	require.NoError(t, err)
	hw := runJSON[[]domain.Message](t, ws, "msg", "peek", "--agent", "hardware_claude")
	assert.Len(t, hw, 1)
	self := runJSON[[]domain.Message](t, ws, "msg", "peek", "--agent", "pm_claude")
	assert.Empty(t, self)
}

func TestStatusReportAndSpecCommands(t *testing.T) {
	ws := t.TempDir()

	_, err := run(t, ws, "--actor-id", "qa_claude", "status", "set", "--state", "testing", "--extra", "build=42")
	require.NoError(t, err)
	team := runJSON[[]domain.AgentStatus](t, ws, "status", "show")
	require.Len(t, team, 1)
	assert.Equal(t, "42", team[0].Extra["build"])

	_, err = run(t, ws, "notify", "--priority", "loud", "x")
	assert.Equal(t, 2, exitCode(err))
	_, err = run(t, ws, "notify", "--priority", "high", "line down")
	require.NoError(t, err)
	ns := runJSON[[]domain.Notification](t, ws, "notifications")
	require.Len(t, ns, 1)

	rep := runJSON[domain.Report](t, ws, "report", "daily")
	dates := runJSON[[]string](t, ws, "report", "list")
	assert.Equal(t, []string{rep.Date}, dates)
	shown := runJSON[domain.Report](t, ws, "report", "show", rep.Date)
	assert.Equal(t, rep.Date, shown.Date)
	_, err = run(t, ws, "report", "show", "2001-01-01")
	assert.Equal(t, 3, exitCode(err))

	specFile := filepath.Join(t.TempDir(), "widget.yml")
	require.NoError(t, os.WriteFile(specFile, []byte("voltage: 3.3V\npins:\n  - vcc\n  - gnd\n"), 0o644))
	_, err = run(t, ws, "--actor-id", "pm_claude", "spec", "put", "widget", "-f", specFile, "--set", "color=red")
	require.NoError(t, err)
	spec := runJSON[domain.ProductSpec](t, ws, "spec", "get", "widget")
	assert.Equal(t, "3.3V", spec.Body["voltage"])
	assert.Equal(t, "red", spec.Body["color"])
	assert.Len(t, spec.Body["pins"], 2)

	out, err := run(t, ws, "dashboard")
	require.NoError(t, err)
	assert.Contains(t, out, "qa_claude")
	assert.Contains(t, out, "line down")
}

func TestConfigCommands(t *testing.T) {
	ws := t.TempDir()
	out, err := run(t, ws, "config", "init")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "wrote "))
	_, err = os.Stat(filepath.Join(ws, "huddle.yml"))
	require.NoError(t, err)

	_, err = run(t, ws, "config", "init")
	assert.Equal(t, 5, exitCode(err))

	out, err = run(t, ws, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "supervisor: ceo")
}
