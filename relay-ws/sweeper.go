package relayws

import (
	"context"
	"fmt"
	"sync"

	relaycli "github.com/chatrelay/relay-go-utils/relay-cli"
	"golang.org/x/sync/errgroup"
)

type SweepReport struct {
	Checked int
	Alive   int
	Gone    int
	Failed  int
	Skipped int // no endpoint stored and no default configured
}

// Sweeper checks every registered connection and removes the ones the
// gateway reports gone. It catches connections whose $disconnect never
// arrived and that no message has been sent to since.
type Sweeper struct {
	cfg        Config
	registry   Registry
	reconciler *Reconciler
	senders    SenderFactory
}

func NewSweeper(cfg Config, registry Registry, senders SenderFactory) *Sweeper {
	cfg = cfg.withDefaults()
	return &Sweeper{
		cfg:        cfg,
		registry:   registry,
		reconciler: NewReconciler(cfg, registry),
		senders:    senders,
	}
}

func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	conns, err := s.registry.ScanAll(ctx)
	if err != nil {
		return SweepReport{}, fmt.Errorf("%w: %w", ErrStore, err)
	}

	var (
		mu     sync.Mutex
		g      errgroup.Group
		report SweepReport
	)
	g.SetLimit(s.cfg.Concurrency)

	for _, rc := range groupByConnection(conns) {
		rc := rc
		endpoint := rc.endpoint
		if endpoint == "" {
			endpoint = s.cfg.DefaultEndpoint
		}
		if endpoint == "" {
			mu.Lock()
			report.Skipped++
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			result := s.reconciler.Check(ctx, s.senders(endpoint), rc.connectionID, rc.owners...)
			mu.Lock()
			defer mu.Unlock()
			report.Checked++
			switch result.Outcome {
			case Delivered:
				report.Alive++
			case Gone:
				report.Gone++
			default:
				report.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	s.cfg.log(ctx).Info().
		Int("checked", report.Checked).
		Int("alive", report.Alive).
		Int("gone", report.Gone).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Msg("sweep complete")
	s.cfg.Metrics.Gauge(ctx, relaycli.SweepCheckedMetric, float64(report.Checked))
	return report, nil
}
