package relayws

import (
	"context"
	"fmt"

	relaycli "github.com/chatrelay/relay-go-utils/relay-cli"
	"github.com/chatrelay/relay-go-utils/relay-ws/connectiondao"
)

// Outcome of a single push to one connection.
type Outcome int

const (
	Delivered Outcome = iota
	// Gone means the gateway no longer knows the connection.
	Gone
	// Failed is any other, presumably transient, failure.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Gone:
		return "gone"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

type Result struct {
	Outcome Outcome
	Err     error
}

func (r Result) OK() bool {
	return r.Outcome == Delivered
}

// Sender pushes bytes to connections behind one gateway endpoint.
type Sender interface {
	Send(ctx context.Context, connectionID string, data []byte) Result
	// Check checks that the connection still exists without sending to it.
	Check(ctx context.Context, connectionID string) Result
	// Disconnect closes the connection at the gateway, which then emits
	// $disconnect for it.
	Disconnect(ctx context.Context, connectionID string) Result
}

// SenderFactory returns the Sender for a management endpoint derived from the
// inbound request.
type SenderFactory func(endpoint string) Sender

// Reconciler performs deliveries and removes registry rows for connections the
// gateway reports gone.
type Reconciler struct {
	cfg      Config
	registry Registry
}

func NewReconciler(cfg Config, registry Registry) *Reconciler {
	return &Reconciler{
		cfg:      cfg.withDefaults(),
		registry: registry,
	}
}

// Push delivers payload to connectionID. On Gone every owner row is deleted;
// the repair never changes the returned result.
func (r *Reconciler) Push(ctx context.Context, sender Sender, connectionID string, payload []byte, owners ...connectiondao.Key) Result {
	return r.reconcile(ctx, "push", connectionID, sender.Send(ctx, connectionID, payload), owners)
}

// Check checks connectionID with the same repair semantics as Push.
func (r *Reconciler) Check(ctx context.Context, sender Sender, connectionID string, owners ...connectiondao.Key) Result {
	return r.reconcile(ctx, "check", connectionID, sender.Check(ctx, connectionID), owners)
}

func (r *Reconciler) reconcile(ctx context.Context, op, connectionID string, result Result, owners []connectiondao.Key) Result {
	logger := r.cfg.log(ctx)
	switch result.Outcome {
	case Delivered:
		logger.Debug().Str("op", op).Str("target_connection", connectionID).Msg("delivered")

	case Gone:
		logger.Info().Str("op", op).Str("target_connection", connectionID).Int("rows", len(owners)).Msg("connection gone, cleaning up")
		r.cfg.Metrics.Event(ctx, relaycli.DeliveryGoneMetric, map[relaycli.DimensionName]string{relaycli.OperationNameDimension: op})
		r.repair(ctx, connectionID, owners)

	default:
		logger.Error().Err(result.Err).Str("op", op).Str("target_connection", connectionID).Msg("delivery failed")
		r.cfg.Metrics.Event(ctx, relaycli.DeliveryFailedMetric, map[relaycli.DimensionName]string{relaycli.OperationNameDimension: op})
	}
	return result
}

func (r *Reconciler) repair(ctx context.Context, connectionID string, owners []connectiondao.Key) {
	var err error
	switch len(owners) {
	case 0:
		return
	case 1:
		err = r.registry.Delete(ctx, owners[0])
	default:
		err = r.registry.BatchDelete(ctx, owners)
	}
	if err != nil {
		r.cfg.log(ctx).Error().Err(err).Str("target_connection", connectionID).Msg("failed to delete gone connection")
	}
}
