package relayws

import (
	"context"
	"fmt"

	relaycli "github.com/chatrelay/relay-go-utils/relay-cli"
	"github.com/chatrelay/relay-go-utils/relay-ws/connectiondao"
)

// Lifecycle keeps the registry in step with connect and disconnect events.
// Both operations are idempotent so duplicated or reordered events are safe.
type Lifecycle struct {
	cfg      Config
	registry Registry
}

func NewLifecycle(cfg Config, registry Registry) *Lifecycle {
	return &Lifecycle{
		cfg:      cfg.withDefaults(),
		registry: registry,
	}
}

// OnConnect records that clientID is reachable through connectionID.
// Reconnecting with the same pair overwrites the existing record.
func (l *Lifecycle) OnConnect(ctx context.Context, connectionID, clientID, endpoint string) error {
	if clientID == "" {
		return ErrClientIDMissing
	}

	now := l.cfg.Now()
	conn := connectiondao.Connection{
		ClientID:     clientID,
		ConnectionID: connectionID,
		Endpoint:     endpoint,
		ConnectedAt:  now.Unix(),
		TTL:          now.Add(l.cfg.ConnTTL).Unix(),
	}
	if err := l.registry.Put(ctx, conn); err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}

	l.cfg.Metrics.Event(ctx, relaycli.ConnectionOpenedMetric)
	return nil
}

// OnDisconnect removes every record referencing connectionID and returns how
// many were removed. ErrConnectionNotFound means nothing referenced it, which
// signals a duplicate event or a registry already repaired by delivery.
func (l *Lifecycle) OnDisconnect(ctx context.Context, connectionID string) (int, error) {
	conns, err := l.lookup(ctx, connectionID)
	if err != nil {
		return 0, err
	}
	return l.remove(ctx, conns)
}

// ForceDisconnect closes connectionID at the gateway through the endpoint its
// records were stored with, then removes the records. The records are removed
// even when the close fails; the returned Result reports the close.
func (l *Lifecycle) ForceDisconnect(ctx context.Context, senders SenderFactory, connectionID string) (Result, int, error) {
	conns, err := l.lookup(ctx, connectionID)
	if err != nil {
		return Result{}, 0, err
	}

	closed := Result{Outcome: Failed, Err: fmt.Errorf("%w: no endpoint for connection %v", ErrDelivery, connectionID)}
	if endpoint := l.endpointOf(conns); endpoint != "" {
		closed = senders(endpoint).Disconnect(ctx, connectionID)
	}
	if closed.Outcome == Failed {
		l.cfg.log(ctx).Warn().Err(closed.Err).Str("target_connection", connectionID).Msg("failed to close connection at gateway")
	}

	removed, err := l.remove(ctx, conns)
	return closed, removed, err
}

func (l *Lifecycle) lookup(ctx context.Context, connectionID string) ([]connectiondao.Connection, error) {
	conns, err := l.registry.QueryByConnection(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	if len(conns) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrConnectionNotFound, connectionID)
	}
	return conns, nil
}

func (l *Lifecycle) endpointOf(conns []connectiondao.Connection) string {
	for _, conn := range conns {
		if conn.Endpoint != "" {
			return conn.Endpoint
		}
	}
	return l.cfg.DefaultEndpoint
}

func (l *Lifecycle) remove(ctx context.Context, conns []connectiondao.Connection) (int, error) {
	keys := connectiondao.Keys(conns)
	for i := 0; i < len(keys); i += connectiondao.MaxBatchSize {
		end := i + connectiondao.MaxBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := l.registry.BatchDelete(ctx, keys[i:end]); err != nil {
			return i, fmt.Errorf("%w: %w", ErrStore, err)
		}
	}

	l.cfg.Metrics.Event(ctx, relaycli.ConnectionClosedMetric)
	return len(keys), nil
}
