package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cassiomorais/coursepay/internal/domain/outbox"
	infraRedis "github.com/cassiomorais/coursepay/internal/infrastructure/redis"
	"github.com/cassiomorais/coursepay/internal/service"
	"github.com/google/uuid"
)

// --- Test Doubles ---

type fakePublisher struct {
	mu        sync.Mutex
	published []*outbox.Entry
	failFor   map[uuid.UUID]bool
}

func (p *fakePublisher) Publish(ctx context.Context, e *outbox.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor[e.ID] {
		return errors.New("redis: connection pool timeout")
	}
	p.published = append(p.published, e)
	return nil
}

type fakeSource struct {
	mu        sync.Mutex
	batches   [][]infraRedis.Message
	reclaimed []infraRedis.Message
	acked     []string
}

func (s *fakeSource) Read(ctx context.Context) ([]infraRedis.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.batches) == 0 {
		s.mu.Unlock()
		time.Sleep(time.Millisecond)
		s.mu.Lock()
		return nil, nil
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b, nil
}

func (s *fakeSource) ReclaimIdle(ctx context.Context, minIdle time.Duration) ([]infraRedis.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.reclaimed
	s.reclaimed = nil
	return out, nil
}

func (s *fakeSource) Ack(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked = append(s.acked, id)
	return nil
}

func (s *fakeSource) Acked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.acked...)
}

type fakeDLQ struct {
	mu      sync.Mutex
	reasons map[string]string
}

func (d *fakeDLQ) PublishToDLQ(ctx context.Context, msg infraRedis.Message, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reasons == nil {
		d.reasons = make(map[string]string)
	}
	d.reasons[msg.ID] = reason
	return nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
	err      error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) TryLock(ctx context.Context, key string) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		l.released = append(l.released, key)
		return nil
	}, true, nil
}

type fakeActivator struct {
	mu    sync.Mutex
	calls map[uuid.UUID]int
	err   error
}

func (a *fakeActivator) Activate(ctx context.Context, id uuid.UUID) (service.Activation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.calls == nil {
		a.calls = make(map[uuid.UUID]int)
	}
	a.calls[id]++
	if a.err != nil {
		return service.Activation{}, a.err
	}
	return service.Activation{Created: a.calls[id] == 1}, nil
}

func (a *fakeActivator) Calls(id uuid.UUID) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[id]
}
