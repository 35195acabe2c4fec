package relayws

import (
	"context"
	"errors"
	"fmt"
	"sync"

	relaycli "github.com/chatrelay/relay-go-utils/relay-cli"
	"golang.org/x/sync/errgroup"
)

// Report summarises the deliveries issued for one envelope.
type Report struct {
	Kind      Kind
	Recipient string
	Attempted int
	Delivered int
	Gone      int
	Failed    int

	failures []error
}

func (r *Report) add(result Result) {
	r.Attempted++
	switch result.Outcome {
	case Delivered:
		r.Delivered++
	case Gone:
		r.Gone++
	default:
		r.Failed++
		r.failures = append(r.failures, result.Err)
	}
}

// Router resolves envelope targets against the registry and drives delivery.
type Router struct {
	cfg        Config
	registry   Registry
	reconciler *Reconciler
}

func NewRouter(cfg Config, registry Registry, reconciler *Reconciler) *Router {
	return &Router{
		cfg:        cfg.withDefaults(),
		registry:   registry,
		reconciler: reconciler,
	}
}

// CommandAck is the payload a command's target receives. Commands are not
// executed; the target is only told one was issued.
func CommandAck(command string) []byte {
	return []byte(`Received command "` + command + `"`)
}

// Route classifies env's target and delivers through sender.
//
// Broadcasts succeed once every attempt has been issued, whatever the
// individual outcomes. Direct messages and commands fail with ErrDelivery if
// any attempt failed, succeed if any was delivered, and otherwise fail with
// ErrConnectionGone.
func (r *Router) Route(ctx context.Context, sender Sender, env Envelope) (Report, error) {
	target := Classify(env.Target)
	report := Report{Kind: target.Kind, Recipient: target.Recipient}

	var err error
	switch target.Kind {
	case Broadcast:
		err = r.broadcast(ctx, sender, []byte(env.Message), &report)
	case Direct:
		err = r.direct(ctx, sender, target.Recipient, []byte(env.Message), &report)
	case Command:
		r.cfg.log(ctx).Info().Str("recipient", target.Recipient).Str("command", env.Message).Msg("received command")
		err = r.direct(ctx, sender, target.Recipient, CommandAck(env.Message), &report)
	default:
		err = target.Err
	}

	if err == nil {
		r.cfg.Metrics.Event(ctx, relaycli.MessageRoutedMetric, map[relaycli.DimensionName]string{
			relaycli.TargetKindDimension: target.Kind.String(),
		})
	}
	return report, err
}

func (r *Router) broadcast(ctx context.Context, sender Sender, payload []byte, report *Report) error {
	conns, err := r.registry.ScanAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}

	recipients := groupByConnection(conns)
	r.deliver(ctx, sender, recipients, payload, report)

	r.cfg.log(ctx).Info().
		Int("attempted", report.Attempted).
		Int("delivered", report.Delivered).
		Int("gone", report.Gone).
		Int("failed", report.Failed).
		Msg("broadcast issued")
	r.cfg.Metrics.Gauge(ctx, relaycli.BroadcastFanoutMetric, float64(report.Attempted))
	return nil
}

func (r *Router) direct(ctx context.Context, sender Sender, clientID string, payload []byte, report *Report) error {
	conns, err := r.registry.QueryByClient(ctx, clientID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	if len(conns) == 0 {
		return fmt.Errorf("%w: %v", ErrRecipientNotFound, clientID)
	}
	if r.cfg.FanOut == FanOutFirst {
		conns = conns[:1]
	}

	r.deliver(ctx, sender, groupByConnection(conns), payload, report)

	switch {
	case report.Failed > 0:
		return fmt.Errorf("%w: clientId %v: %w", ErrDelivery, clientID, errors.Join(report.failures...))
	case report.Delivered > 0:
		return nil
	default:
		return fmt.Errorf("%w: every connection for clientId %v", ErrConnectionGone, clientID)
	}
}

// deliver pushes payload to each recipient independently. One failure never
// cancels the others.
func (r *Router) deliver(ctx context.Context, sender Sender, recipients []recipient, payload []byte, report *Report) {
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(r.cfg.Concurrency)

	for _, rc := range recipients {
		rc := rc
		g.Go(func() error {
			result := r.reconciler.Push(ctx, sender, rc.connectionID, payload, rc.owners...)
			mu.Lock()
			report.add(result)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}
