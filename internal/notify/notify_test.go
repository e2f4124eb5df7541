package notify

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/internal/domain"
)

func TestRedisPublishSubscribe(t *testing.T) {
	m := miniredis.RunT(t)
	logger, _ := test.NewNullLogger()
	n, err := Dial(context.Background(), "redis://"+m.Addr(), time.Second, logger)
	require.NoError(t, err)
	defer n.Close()

	ctx := context.Background()
	sub, err := n.Subscribe(ctx, AgentTopic("qa"), TopicBroadcast)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, n.Publish(ctx, AgentTopic("qa"), Signal{Type: SignalNewTask, TaskID: "task_1"}))
	require.NoError(t, n.Publish(ctx, AgentTopic("pm"), Signal{Type: SignalNewTask, TaskID: "task_2"}))
	require.NoError(t, n.Publish(ctx, TopicBroadcast, Signal{Type: SignalSpecUpdate, Product: "widget"}))

	got := receive(t, sub, 2)
	assert.Equal(t, "agent:qa", got[0].Topic)
	assert.Equal(t, "task_1", got[0].TaskID)
	assert.Equal(t, TopicBroadcast, got[1].Topic)
	assert.Equal(t, "widget", got[1].Product)
}

func TestRedisWireFormat(t *testing.T) {
	m := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer rc.Close()
	n := NewRedis(rc, nil)

	ctx := context.Background()
	ps := rc.Subscribe(ctx, AgentTopic("qa"))
	defer ps.Close()
	_, err := ps.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, n.Publish(ctx, AgentTopic("qa"), Signal{Type: SignalNewMessage, From: "pm"}))
	select {
	case msg := <-ps.Channel():
		assert.JSONEq(t, `{"type":"new_message","from":"pm"}`, msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestConnectFallsBackToNop(t *testing.T) {
	logger, hook := test.NewNullLogger()
	m := miniredis.RunT(t)
	addr := m.Addr()
	m.Close()

	n := Connect(context.Background(), "redis://"+addr, 100*time.Millisecond, logger)
	assert.IsType(t, Nop{}, n)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	hook.Reset()
	assert.IsType(t, Nop{}, Connect(context.Background(), "", time.Second, logger))
	for _, e := range hook.AllEntries() {
		assert.NotEqual(t, logrus.WarnLevel, e.Level)
	}
}

func TestPublishFailureIsNotifierUnavailable(t *testing.T) {
	m := miniredis.RunT(t)
	n, err := Dial(context.Background(), "redis://"+m.Addr(), time.Second, nil)
	require.NoError(t, err)
	defer n.Close()
	m.Close()

	err = n.Publish(context.Background(), TopicUrgent, Signal{Type: SignalUrgent})
	require.ErrorIs(t, err, domain.ErrNotifierUnavailable)
}

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	require.NoError(t, n.Publish(context.Background(), TopicBroadcast, Signal{}))
	sub, err := n.Subscribe(context.Background(), TopicBroadcast)
	require.NoError(t, err)
	assert.Nil(t, sub.C())
	require.NoError(t, sub.Close())
}

func receive(t *testing.T, sub Subscription, n int) []Signal {
	t.Helper()
	var out []Signal
	deadline := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case sig := <-sub.C():
			out = append(out, sig)
		case <-deadline:
			t.Fatalf("received %d of %d signals", len(out), n)
		}
	}
	return out
}
