package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"huddle/internal/domain"
)

const subBuffer = 32

// Redis publishes signals over Redis pub/sub.
type Redis struct {
	rc  *redis.Client
	log log.FieldLogger
}

func NewRedis(rc *redis.Client, logger log.FieldLogger) *Redis {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Redis{rc: rc, log: logger}
}

// Dial connects to url and pings it within timeout.
func Dial(ctx context.Context, url string, timeout time.Duration, logger log.FieldLogger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w: %v", domain.ErrNotifierUnavailable, err)
	}
	rc := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rc.Ping(pctx).Err(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("ping %s: %w: %v", opts.Addr, domain.ErrNotifierUnavailable, err)
	}
	return NewRedis(rc, logger), nil
}

// Connect returns a Redis notifier for url, or Nop when url is empty or unreachable.
func Connect(ctx context.Context, url string, timeout time.Duration, logger log.FieldLogger) Notifier {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if url == "" {
		logger.Debug("no notifier configured, polling only")
		return Nop{}
	}
	r, err := Dial(ctx, url, timeout, logger)
	if err != nil {
		logger.WithError(err).Warn("notifier unavailable, falling back to polling")
		return Nop{}
	}
	return r
}

func (r *Redis) Publish(ctx context.Context, topic string, sig Signal) error {
	data, err := sonic.ConfigStd.Marshal(sig)
	if err != nil {
		return fmt.Errorf("encode signal: %w", err)
	}
	if err := r.rc.Publish(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w: %v", topic, domain.ErrNotifierUnavailable, err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, topics ...string) (Subscription, error) {
	ps := r.rc.Subscribe(ctx, topics...)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe: %w: %v", domain.ErrNotifierUnavailable, err)
	}
	sub := &redisSub{ps: ps, out: make(chan Signal, subBuffer)}
	go sub.pump(r.log)
	return sub, nil
}

func (r *Redis) Close() error { return r.rc.Close() }

type redisSub struct {
	ps  *redis.PubSub
	out chan Signal
}

func (s *redisSub) pump(logger log.FieldLogger) {
	defer close(s.out)
	for msg := range s.ps.Channel() {
		var sig Signal
		if err := sonic.ConfigStd.UnmarshalFromString(msg.Payload, &sig); err != nil {
			logger.WithError(err).WithField("topic", msg.Channel).Debug("ignoring malformed signal")
			continue
		}
		sig.Topic = msg.Channel
		select {
		case s.out <- sig:
		default:
			logger.WithField("topic", msg.Channel).Debug("subscriber busy, dropping signal")
		}
	}
}

func (s *redisSub) C() <-chan Signal { return s.out }

func (s *redisSub) Close() error { return s.ps.Close() }
