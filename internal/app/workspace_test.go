package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/internal/config"
	"huddle/internal/engine"
	"huddle/internal/notify"
	"huddle/internal/store/fsstore"
	"huddle/internal/store/sqlstore"
)

func TestOpenDefaultsToFileStore(t *testing.T) {
	root := t.TempDir()
	logger, _ := test.NewNullLogger()
	ws, err := Open(context.Background(), root, logger)
	require.NoError(t, err)
	defer ws.Close()

	assert.IsType(t, &fsstore.Store{}, ws.Store)
	assert.IsType(t, notify.Nop{}, ws.Notifier)

	_, err = ws.Engine.CreateTask(context.Background(), engine.TaskCreateOptions{ID: "task_1", Title: "t", AssignedTo: "qa_claude"})
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "tasks", "pending", "task_1.json"))
	assert.NoError(t, err)
}

func TestOpenSQLiteBackend(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(root), []byte("store:\n  backend: sqlite\n"), 0o644))
	logger, _ := test.NewNullLogger()
	ws, err := Open(context.Background(), root, logger)
	require.NoError(t, err)
	defer ws.Close()

	assert.IsType(t, &sqlstore.Store{}, ws.Store)
	_, err = ws.Engine.CreateTask(context.Background(), engine.TaskCreateOptions{ID: "task_1", Title: "t", AssignedTo: "qa_claude"})
	require.NoError(t, err)
	got, err := ws.Engine.GetTask(context.Background(), "task_1")
	require.NoError(t, err)
	assert.Equal(t, "t", got.Title)
}

func TestOpenRejectsBadConfig(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(root), []byte("store:\n  backend: s3\n"), 0o644))
	_, err := Open(context.Background(), root, nil)
	require.Error(t, err)
}
