package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"group-chat/internal/domain"
)

type fakeRedisPublisher struct {
	mu      sync.Mutex
	calls   int
	channel string
	payload []byte
	err     error
}

func (f *fakeRedisPublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.channel = channel
	f.payload, _ = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func (f *fakeRedisPublisher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSubscription struct {
	receiveErr error
	ch         chan *redis.Message
	closed     atomic.Bool
}

func (s *fakeSubscription) Receive(context.Context) (interface{}, error) {
	if s.receiveErr != nil {
		return nil, s.receiveErr
	}
	return &redis.Subscription{Kind: "subscribe"}, nil
}

func (s *fakeSubscription) Channel(...redis.ChannelOption) <-chan *redis.Message { return s.ch }

func (s *fakeSubscription) Close() error {
	s.closed.Store(true)
	return nil
}

// scriptedSubscriber entrega las suscripciones en orden; al agotarse repite la última.
type scriptedSubscriber struct {
	mu       sync.Mutex
	subs     []*fakeSubscription
	attempts int
}

func (s *scriptedSubscriber) subscribe(context.Context, string) relaySubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.attempts
	if idx >= len(s.subs) {
		idx = len(s.subs) - 1
	}
	s.attempts++
	return s.subs[idx]
}

func (s *scriptedSubscriber) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func newTestRelay(pub *fakeRedisPublisher, sub *scriptedSubscriber, local *Registry) *RedisRelay {
	r := newRedisRelay(pub, sub.subscribe, "chat:events", local, zap.NewNop())
	r.minBackoff = time.Millisecond
	r.maxBackoff = 5 * time.Millisecond
	return r
}

func runRelay(t *testing.T, r *RedisRelay) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("relay Run did not stop after cancel")
		}
	})
	return cancel
}

func TestRedisRelay_PublishWhileSubscribedGoesThroughRedis(t *testing.T) {
	local := NewRegistry(zap.NewNop())
	m := NewMember(4)
	require.NoError(t, local.Join("g", m))

	pub := &fakeRedisPublisher{}
	sub := &scriptedSubscriber{subs: []*fakeSubscription{{ch: make(chan *redis.Message, 4)}}}
	relay := newTestRelay(pub, sub, local)
	runRelay(t, relay)

	select {
	case <-relay.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("relay never subscribed")
	}
	require.True(t, relay.Subscribed())

	ev := domain.OutboundEvent{Message: "hi", Username: "alice", Time: "10:00"}
	require.NoError(t, relay.Publish(context.Background(), "g", ev))
	require.Equal(t, 1, pub.Calls())
	require.Equal(t, "chat:events", pub.channel)

	var env relayEnvelope
	require.NoError(t, json.Unmarshal(pub.payload, &env))
	require.Equal(t, "g", env.Group)
	require.Equal(t, ev, env.Event)
	// la entrega local llega por la suscripción, no por Publish
	require.Empty(t, drain(m))

	sub.subs[0].ch <- &redis.Message{Channel: "chat:events", Payload: string(pub.payload)}
	require.Eventually(t, func() bool { return len(m.Frames()) > 0 }, 2*time.Second, 5*time.Millisecond)
	got := drain(m)
	require.Len(t, got, 1)
	require.Equal(t, ev, got[0])
}

func TestRedisRelay_FailingSubscriptionFallsBackToLocal(t *testing.T) {
	local := NewRegistry(zap.NewNop())
	m := NewMember(4)
	require.NoError(t, local.Join("g", m))

	pub := &fakeRedisPublisher{}
	sub := &scriptedSubscriber{subs: []*fakeSubscription{{receiveErr: errors.New("connection refused")}}}
	relay := newTestRelay(pub, sub, local)
	runRelay(t, relay)

	// Run no termina ante el error: sigue reintentando
	require.Eventually(t, func() bool { return sub.Attempts() >= 3 }, 2*time.Second, time.Millisecond)
	require.False(t, relay.Subscribed())

	require.NoError(t, relay.Publish(context.Background(), "g", domain.OutboundEvent{Message: "hi"}))
	require.Zero(t, pub.Calls())
	got := drain(m)
	require.Len(t, got, 1)
	require.Equal(t, "hi", got[0].Message)
}

func TestRedisRelay_RecoversAfterSubscriptionDrops(t *testing.T) {
	local := NewRegistry(zap.NewNop())
	first := &fakeSubscription{ch: make(chan *redis.Message)}
	second := &fakeSubscription{ch: make(chan *redis.Message)}
	sub := &scriptedSubscriber{subs: []*fakeSubscription{
		first,
		{receiveErr: errors.New("redis restarting")},
		second,
	}}
	relay := newTestRelay(&fakeRedisPublisher{}, sub, local)
	runRelay(t, relay)

	require.Eventually(t, relay.Subscribed, 2*time.Second, time.Millisecond)
	close(first.ch)

	require.Eventually(t, func() bool { return sub.Attempts() >= 3 && relay.Subscribed() }, 2*time.Second, time.Millisecond)
	require.True(t, first.closed.Load())
}

func TestRedisRelay_RedisPublishErrorFallsBackToLocal(t *testing.T) {
	local := NewRegistry(zap.NewNop())
	m := NewMember(4)
	require.NoError(t, local.Join("g", m))

	relay := newRedisRelay(&fakeRedisPublisher{err: errors.New("conn refused")}, nil, "c", local, zap.NewNop())
	relay.subscribed.Store(true)

	require.NoError(t, relay.Publish(context.Background(), "g", domain.OutboundEvent{Message: "hi"}))
	require.Len(t, drain(m), 1)
}

func TestRedisRelay_Deliver(t *testing.T) {
	local := NewRegistry(zap.NewNop())
	m := NewMember(4)
	require.NoError(t, local.Join("g", m))
	relay := newRedisRelay(nil, nil, "c", local, zap.NewNop())

	relay.deliver(context.Background(), []byte("garbage"))
	require.Empty(t, drain(m))

	payload, err := json.Marshal(relayEnvelope{Group: "g", Event: domain.OutboundEvent{Message: "remote", Username: "bob"}})
	require.NoError(t, err)
	relay.deliver(context.Background(), payload)

	got := drain(m)
	require.Len(t, got, 1)
	require.Equal(t, "remote", got[0].Message)
}
