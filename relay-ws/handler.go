package relayws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	relaycli "github.com/chatrelay/relay-go-utils/relay-cli"
	"github.com/rs/zerolog"
)

const (
	RouteConnect     = "$connect"
	RouteDisconnect  = "$disconnect"
	RouteDefault     = "$default"
	RouteSendMessage = ActionSendMessage

	// ClientIDParam is the query string parameter naming the client at connect.
	ClientIDParam = "clientId"
)

// Handler handles API Gateway WebSocket events. Every failure becomes a
// status coded response; HandleEvent never returns an error.
type Handler struct {
	cfg       Config
	Lifecycle *Lifecycle
	Router    *Router
	Senders   SenderFactory
}

func NewHandler(cfg Config, registry Registry, senders SenderFactory) *Handler {
	cfg = cfg.withDefaults()
	return &Handler{
		cfg:       cfg,
		Lifecycle: NewLifecycle(cfg, registry),
		Router:    NewRouter(cfg, registry, NewReconciler(cfg, registry)),
		Senders:   senders,
	}
}

// Endpoint derives the management endpoint from the request's own origin.
func Endpoint(req events.APIGatewayWebsocketProxyRequest) string {
	return fmt.Sprintf("https://%s/%s", req.RequestContext.DomainName, req.RequestContext.Stage)
}

// HandleEvent routes an API Gateway WebSocket event to the appropriate handler.
func (h *Handler) HandleEvent(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (resp events.APIGatewayProxyResponse, err error) {
	route := req.RequestContext.RouteKey
	logger := h.cfg.Logger.With().
		Str("connection_id", req.RequestContext.ConnectionID).
		Str("route", route).
		Logger()
	ctx = logger.WithContext(ctx)

	defer func(begin time.Time) {
		if p := recover(); p != nil {
			logger.Error().Interface("panic", p).Msg("recovered from panic")
			resp, err = respond(http.StatusInternalServerError, "An unexpected error occurred."), nil
		}
		h.cfg.Metrics.Timing(ctx, relaycli.ResponseTimeMetric, begin, map[relaycli.DimensionName]string{
			relaycli.OperationNameDimension: route,
		})
	}(time.Now())

	switch route {
	case RouteConnect:
		return h.handleConnect(ctx, logger, req), nil
	case RouteDisconnect:
		return h.handleDisconnect(ctx, logger, req), nil
	case RouteSendMessage, RouteDefault:
		return h.handleMessage(ctx, logger, req), nil
	default:
		logger.Warn().Msg("unknown route")
		return respond(http.StatusBadRequest, "Unknown route."), nil
	}
}

func (h *Handler) handleConnect(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) events.APIGatewayProxyResponse {
	clientID := req.QueryStringParameters[ClientIDParam]
	logger = logger.With().Str("client_id", clientID).Logger()

	if err := h.Lifecycle.OnConnect(ctx, req.RequestContext.ConnectionID, clientID, Endpoint(req)); err != nil {
		return failure(logger, err, "failed to connect")
	}

	logger.Info().Msg("connection established")
	return respond(http.StatusOK, "Connected.")
}

func (h *Handler) handleDisconnect(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) events.APIGatewayProxyResponse {
	removed, err := h.Lifecycle.OnDisconnect(ctx, req.RequestContext.ConnectionID)
	if err != nil {
		return failure(logger, err, "failed to disconnect")
	}

	logger.Info().Int("removed", removed).Msg("connection closed")
	return respond(http.StatusOK, "Disconnected.")
}

func (h *Handler) handleMessage(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) events.APIGatewayProxyResponse {
	env, err := ParseEnvelope(req.Body)
	if err != nil {
		return failure(logger, err, "invalid envelope")
	}

	logger = logger.With().Str("target", env.Target).Logger()
	ctx = logger.WithContext(ctx)

	report, err := h.Router.Route(ctx, h.Senders(Endpoint(req)), env)
	if err != nil {
		return failure(logger, err, "failed to route message")
	}

	logger.Info().
		Str("kind", report.Kind.String()).
		Int("delivered", report.Delivered).
		Msg("message routed")

	switch report.Kind {
	case Broadcast:
		return respond(http.StatusOK, "Message sent to all connections.")
	case Command:
		return respond(http.StatusOK, "Command executed.")
	default:
		return respond(http.StatusOK, "Message sent.")
	}
}

func respond(status int, body string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{StatusCode: status, Body: body}
}

// failure logs err at a level matching its status and builds the response.
// Server side causes are never echoed to the client.
func failure(logger zerolog.Logger, err error, msg string) events.APIGatewayProxyResponse {
	status := StatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Msg(msg)
	} else {
		logger.Warn().Err(err).Msg(msg)
	}
	return respond(status, ResponseBody(err))
}

// ResponseBody is the client facing text for err.
func ResponseBody(err error) string {
	switch {
	case errors.Is(err, ErrTargetMissing):
		return "Target field is missing or empty."
	case errors.Is(err, ErrBadPrefix), errors.Is(err, ErrRecipientMissing):
		return "Invalid target prefix. Use '@' for messages or '#' for commands."
	case errors.Is(err, ErrMalformedEnvelope), errors.Is(err, ErrMessageMissing), errors.Is(err, ErrUnknownAction):
		return fmt.Sprintf("Invalid message: %v", err)
	case errors.Is(err, ErrClientIDMissing):
		return "Missing clientId query parameter."
	case errors.Is(err, ErrRecipientNotFound), errors.Is(err, ErrConnectionGone):
		return err.Error()
	case errors.Is(err, ErrConnectionNotFound):
		return "ClientId not found or ClientId missing in table"
	case errors.Is(err, ErrDelivery):
		return "Error sending message."
	default:
		return "An unexpected error occurred."
	}
}
