// Package relaycron runs a task on a schedule: once from the console, or per
// EventBridge invocation in Lambda mode.
package relaycron

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	relaycli "github.com/chatrelay/relay-go-utils/relay-cli"
	"github.com/rs/zerolog"
)

type RunCallback func(ctx context.Context) error

type Handler struct {
	logger  zerolog.Logger
	metrics relaycli.Recorder
	task    string

	runOnce RunCallback
}

func NewHandler(
	logger zerolog.Logger,
	metrics relaycli.Recorder,
	task string,
	runOnce RunCallback,
) *Handler {
	if metrics == nil {
		metrics = relaycli.NopMetrics{}
	}
	return &Handler{
		logger:  logger,
		metrics: metrics,
		task:    task,
		runOnce: runOnce,
	}
}

func (h *Handler) RunOnce(ctx context.Context, _ json.RawMessage) error {
	ctx = h.logger.WithContext(ctx)
	defer h.metrics.Timing(ctx, relaycli.ResponseTimeMetric, time.Now(), map[relaycli.DimensionName]string{
		relaycli.OperationNameDimension: h.task,
	})

	h.logger.Info().Str("task", h.task).Msg("running scheduled task")
	if err := h.runOnce(ctx); err != nil {
		h.logger.Error().Err(err).Str("task", h.task).Msg("scheduled task failed")
		return err
	}
	return nil
}

func (h *Handler) Start() error {
	switch {
	case relaycli.CommonOpts.Console:
		return h.RunOnce(context.Background(), nil)

	default:
		lambda.Start(h.RunOnce)
	}
	return nil
}
