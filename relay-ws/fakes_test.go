package relayws

import (
	"context"
	"errors"
	"sync"

	"github.com/chatrelay/relay-go-utils/relay-ws/connectiondao"
	"github.com/rs/zerolog"
)

func testConfig() Config {
	return Config{Logger: zerolog.Nop()}
}

// fakeSender delivers to every connection unless told otherwise.
type fakeSender struct {
	mu       sync.Mutex
	outcomes map[string]Outcome
	sent     map[string][]string
	checked  []string
	closed   []string
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		outcomes: map[string]Outcome{},
		sent:     map[string][]string{},
	}
}

func (f *fakeSender) set(connectionID string, outcome Outcome) *fakeSender {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[connectionID] = outcome
	return f
}

func (f *fakeSender) result(connectionID string) Result {
	switch f.outcomes[connectionID] {
	case Gone:
		return Result{Outcome: Gone, Err: ErrConnectionGone}
	case Failed:
		return Result{Outcome: Failed, Err: errors.New("boom")}
	default:
		return Result{Outcome: Delivered}
	}
}

func (f *fakeSender) Send(_ context.Context, connectionID string, data []byte) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := f.result(connectionID)
	if result.OK() {
		f.sent[connectionID] = append(f.sent[connectionID], string(data))
	}
	return result
}

func (f *fakeSender) Check(_ context.Context, connectionID string) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checked = append(f.checked, connectionID)
	return f.result(connectionID)
}

func (f *fakeSender) Disconnect(_ context.Context, connectionID string) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, connectionID)
	return f.result(connectionID)
}

func (f *fakeSender) received(connectionID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[connectionID]
}

func (f *fakeSender) factory(endpoints *[]string) SenderFactory {
	var mu sync.Mutex
	return func(endpoint string) Sender {
		if endpoints != nil {
			mu.Lock()
			*endpoints = append(*endpoints, endpoint)
			mu.Unlock()
		}
		return f
	}
}

// spyRegistry wraps Memory, recording batch sizes and optionally failing.
type spyRegistry struct {
	*connectiondao.Memory

	mu      sync.Mutex
	batches []int
	deletes int
	err     error
}

func newSpyRegistry(conns ...connectiondao.Connection) *spyRegistry {
	m := connectiondao.NewMemory()
	for _, c := range conns {
		_ = m.Put(context.Background(), c)
	}
	return &spyRegistry{Memory: m}
}

func (s *spyRegistry) Put(ctx context.Context, conn connectiondao.Connection) error {
	if s.err != nil {
		return s.err
	}
	return s.Memory.Put(ctx, conn)
}

func (s *spyRegistry) QueryByClient(ctx context.Context, clientID string) ([]connectiondao.Connection, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.Memory.QueryByClient(ctx, clientID)
}

func (s *spyRegistry) QueryByConnection(ctx context.Context, connectionID string) ([]connectiondao.Connection, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.Memory.QueryByConnection(ctx, connectionID)
}

func (s *spyRegistry) ScanAll(ctx context.Context) ([]connectiondao.Connection, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.Memory.ScanAll(ctx)
}

func (s *spyRegistry) Delete(ctx context.Context, key connectiondao.Key) error {
	s.mu.Lock()
	s.deletes++
	s.mu.Unlock()
	return s.Memory.Delete(ctx, key)
}

func (s *spyRegistry) BatchDelete(ctx context.Context, keys []connectiondao.Key) error {
	s.mu.Lock()
	s.batches = append(s.batches, len(keys))
	s.mu.Unlock()
	return s.Memory.BatchDelete(ctx, keys)
}

func conn(clientID, connectionID string) connectiondao.Connection {
	return connectiondao.Connection{ClientID: clientID, ConnectionID: connectionID}
}
