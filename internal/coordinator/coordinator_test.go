package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/internal/config"
	"huddle/internal/domain"
	"huddle/internal/engine"
	"huddle/internal/notify"
	"huddle/internal/store/fsstore"
)

func newEngine(t *testing.T, n notify.Notifier, now time.Time) engine.Engine {
	t.Helper()
	s, err := fsstore.Open(t.TempDir())
	require.NoError(t, err)
	cfg := config.Default()
	cfg.Reports.Timezone = "UTC"
	logger, _ := test.NewNullLogger()
	eng := engine.New(s, n, cfg, logger)
	eng.Now = func() time.Time { return now }
	return eng
}

func TestSchedulerTick(t *testing.T) {
	ctx := context.Background()
	morning := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	eng := newEngine(t, nil, morning)
	s := Scheduler{Engine: eng}

	ran, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, ran, "report generated before the configured hour")

	evening := time.Date(2024, 5, 1, 18, 5, 0, 0, time.UTC)
	s.Engine.Now = func() time.Time { return evening }
	ran, err = s.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = s.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, ran, "report generated twice in one day")

	dates, err := s.Engine.ListReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-05-01"}, dates)
	ns, err := s.Engine.Notifications(ctx, 0)
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, domain.PriorityNormal, ns[0].Priority)
}

func TestSchedulerRunStops(t *testing.T) {
	eng := newEngine(t, nil, time.Date(2024, 5, 1, 19, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Scheduler{Engine: eng, Interval: 10 * time.Millisecond}.Run(ctx) }()

	require.Eventually(t, func() bool {
		dates, err := eng.ListReports(context.Background())
		return err == nil && len(dates) == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

type inboxes struct {
	mu  sync.Mutex
	got []Inbox
}

func (i *inboxes) handle(_ context.Context, in Inbox) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.got = append(i.got, in)
	return nil
}

func (i *inboxes) messages() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := 0
	for _, in := range i.got {
		n += len(in.Messages)
	}
	return n
}

func TestWatcherWakesOnSignal(t *testing.T) {
	m := miniredis.RunT(t)
	logger, _ := test.NewNullLogger()
	n, err := notify.Dial(context.Background(), "redis://"+m.Addr(), time.Second, logger)
	require.NoError(t, err)
	defer n.Close()

	eng := newEngine(t, n, time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	got := &inboxes{}
	w := Watcher{Engine: eng, Agent: "qa_claude", Interval: time.Hour, Handle: got.handle}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		return m.PubSubNumSub(notify.AgentTopic("qa_claude"))[notify.AgentTopic("qa_claude")] == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err = eng.Send(context.Background(), domain.Message{FromAgent: "pm_claude", ToAgent: "qa_claude", Content: "ping"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return got.messages() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcherPollsWithoutNotifier(t *testing.T) {
	eng := newEngine(t, notify.Nop{}, time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	got := &inboxes{}
	w := Watcher{Engine: eng, Agent: "qa_claude", Interval: 20 * time.Millisecond, Handle: got.handle}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	_, err := eng.CreateTask(context.Background(), engine.TaskCreateOptions{Title: "smoke test", AssignedTo: "qa_claude"})
	require.NoError(t, err)
	_, err = eng.Send(context.Background(), domain.Message{FromAgent: "pm_claude", ToAgent: "qa_claude", Content: "ping"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return got.messages() == 1 }, 2*time.Second, 10*time.Millisecond)
	got.mu.Lock()
	assert.NotEmpty(t, got.got[len(got.got)-1].Tasks)
	got.mu.Unlock()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, got.messages(), "message delivered twice")
}
