// Package localgw emulates the API Gateway WebSocket API for console mode.
//
// Clients connect to /{stage}?clientId=X. Each connection gets a uuid id and
// its lifecycle and frames are turned into the same proxy events API Gateway
// would deliver to the Lambda handler. The Gateway also implements
// relayws.Sender so the handler can push back to its own clients.
package localgw

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	relayws "github.com/chatrelay/relay-go-utils/relay-ws"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HandleFunc receives the proxy events; relayws.Handler.HandleEvent is one.
type HandleFunc func(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error)

type Config struct {
	Logger zerolog.Logger

	// Registerer, when set, receives an open connections gauge.
	Registerer prometheus.Registerer
	// Gatherer, when set, is served on /metrics.
	Gatherer prometheus.Gatherer
}

type Gateway struct {
	cfg      Config
	upgrader websocket.Upgrader

	connections sync.Map // map[string]*conn
}

// conn serialises writes; gorilla allows one concurrent writer.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// close sends a normal closure frame and drops the socket. The read loop
// then exits and emits $disconnect.
func (c *conn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.ws.Close()
}

func New(cfg Config) *Gateway {
	g := &Gateway{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	if cfg.Registerer != nil {
		promauto.With(cfg.Registerer).NewGaugeFunc(prometheus.GaugeOpts{
			Name: "relay_localgw_connections",
			Help: "open websocket connections",
		}, func() float64 { return float64(g.Len()) })
	}
	return g
}

// Routes serves the WebSocket endpoint, delivering events to handle.
func (g *Gateway) Routes(handle HandleFunc) chi.Router {
	router := chi.NewRouter()
	if g.cfg.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(g.cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	serve := func(w http.ResponseWriter, req *http.Request) {
		g.serve(w, req, handle)
	}
	router.Get("/{stage}", serve)
	router.Get("/{stage}/", serve)
	return router
}

// Len returns the number of open connections.
func (g *Gateway) Len() int {
	n := 0
	g.connections.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// SenderFor is a relayws.SenderFactory. Every endpoint resolves to this
// gateway.
func (g *Gateway) SenderFor(string) relayws.Sender {
	return g
}

func (g *Gateway) Send(_ context.Context, connectionID string, data []byte) relayws.Result {
	v, ok := g.connections.Load(connectionID)
	if !ok {
		return relayws.Result{Outcome: relayws.Gone, Err: relayws.ErrConnectionGone}
	}
	if err := v.(*conn).write(data); err != nil {
		return relayws.Result{Outcome: relayws.Failed, Err: err}
	}
	return relayws.Result{Outcome: relayws.Delivered}
}

func (g *Gateway) Check(_ context.Context, connectionID string) relayws.Result {
	if _, ok := g.connections.Load(connectionID); !ok {
		return relayws.Result{Outcome: relayws.Gone, Err: relayws.ErrConnectionGone}
	}
	return relayws.Result{Outcome: relayws.Delivered}
}

func (g *Gateway) Disconnect(_ context.Context, connectionID string) relayws.Result {
	v, ok := g.connections.Load(connectionID)
	if !ok {
		return relayws.Result{Outcome: relayws.Gone, Err: relayws.ErrConnectionGone}
	}
	if err := v.(*conn).close(); err != nil {
		return relayws.Result{Outcome: relayws.Failed, Err: err}
	}
	return relayws.Result{Outcome: relayws.Delivered}
}

// Close drops every connection without emitting $disconnect; the read loops
// emit it as they exit.
func (g *Gateway) Close() {
	g.connections.Range(func(_, v any) bool {
		_ = v.(*conn).ws.Close()
		return true
	})
}

func (g *Gateway) serve(w http.ResponseWriter, req *http.Request, handle HandleFunc) {
	connectionID := uuid.NewString()
	logger := g.cfg.Logger.With().Str("connection_id", connectionID).Logger()
	ctx := logger.WithContext(req.Context())
	connectedAt := time.Now()

	event := func(route, eventType, body string) events.APIGatewayWebsocketProxyRequest {
		e := events.APIGatewayWebsocketProxyRequest{
			Body: body,
			RequestContext: events.APIGatewayWebsocketProxyRequestContext{
				RouteKey:         route,
				EventType:        eventType,
				ConnectionID:     connectionID,
				DomainName:       req.Host,
				Stage:            chi.URLParam(req, "stage"),
				ConnectedAt:      connectedAt.UnixMilli(),
				RequestTimeEpoch: time.Now().UnixMilli(),
			},
		}
		if route == relayws.RouteConnect {
			e.QueryStringParameters = queryParameters(req)
		}
		return e
	}

	// $connect runs before the handshake completes; any non-200 rejects it.
	resp, err := handle(ctx, event(relayws.RouteConnect, "CONNECT", ""))
	if err != nil {
		logger.Error().Err(err).Msg("connect handler failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if resp.StatusCode != http.StatusOK {
		logger.Info().Int("status", resp.StatusCode).Msg("connect rejected")
		http.Error(w, resp.Body, resp.StatusCode)
		return
	}

	ws, err := g.upgrader.Upgrade(w, req, nil)
	if err != nil {
		logger.Error().Err(err).Msg("failed to upgrade connection")
		_, _ = handle(context.WithoutCancel(ctx), event(relayws.RouteDisconnect, "DISCONNECT", ""))
		return
	}
	g.connections.Store(connectionID, &conn{ws: ws})
	logger.Info().Msg("client connected")

	defer func() {
		g.connections.Delete(connectionID)
		if err := ws.Close(); err != nil {
			logger.Debug().Err(err).Msg("error closing connection")
		}
		if _, err := handle(context.WithoutCancel(ctx), event(relayws.RouteDisconnect, "DISCONNECT", "")); err != nil {
			logger.Error().Err(err).Msg("disconnect handler failed")
		}
		logger.Info().Msg("client disconnected")
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		body := string(data)
		resp, err := handle(ctx, event(selectRoute(data), "MESSAGE", body))
		switch {
		case err != nil:
			logger.Error().Err(err).Msg("message handler failed")
		case resp.StatusCode != http.StatusOK:
			logger.Warn().Int("status", resp.StatusCode).Str("body", resp.Body).Msg("message rejected")
		}
	}
}

// selectRoute mirrors the $request.body.action route selection expression.
func selectRoute(body []byte) string {
	var v struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(body, &v); err == nil && v.Action == relayws.RouteSendMessage {
		return relayws.RouteSendMessage
	}
	return relayws.RouteDefault
}

func queryParameters(req *http.Request) map[string]string {
	query := req.URL.Query()
	if len(query) == 0 {
		return nil
	}
	params := make(map[string]string, len(query))
	for k := range query {
		params[k] = query.Get(k)
	}
	return params
}
