package relayws

import (
	"encoding/json"
	"net/http"

	"github.com/chatrelay/relay-go-utils/relay-ws/connectiondao"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type connectionsResponse struct {
	Connections []connectiondao.Connection `json:"connections"`
}

type disconnectResponse struct {
	ConnectionID string `json:"connectionId"`
	Removed      int    `json:"removed"`
	// Gateway is closed, gone or failed.
	Gateway string `json:"gateway"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// AdminRoutes exposes the registry for operators: listing every connection,
// listing one client's connections, and forcing a disconnect. A forced
// disconnect closes the socket through senders and removes its records.
func AdminRoutes(lifecycle *Lifecycle, registry Registry, senders SenderFactory) chi.Router {
	router := chi.NewRouter()

	router.Get("/connections", func(w http.ResponseWriter, req *http.Request) {
		conns, err := registry.ScanAll(req.Context())
		if err != nil {
			writeError(w, req, ErrStore, err)
			return
		}
		writeJSON(w, http.StatusOK, connectionsResponse{Connections: nonNil(conns)})
	})

	router.Get("/clients/{clientId}/connections", func(w http.ResponseWriter, req *http.Request) {
		clientID := chi.URLParam(req, "clientId")
		conns, err := registry.QueryByClient(req.Context(), clientID)
		if err != nil {
			writeError(w, req, ErrStore, err)
			return
		}
		writeJSON(w, http.StatusOK, connectionsResponse{Connections: nonNil(conns)})
	})

	router.Delete("/connections/{connectionId}", func(w http.ResponseWriter, req *http.Request) {
		connectionID := chi.URLParam(req, "connectionId")
		closed, removed, err := lifecycle.ForceDisconnect(req.Context(), senders, connectionID)
		if err != nil {
			writeError(w, req, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, disconnectResponse{
			ConnectionID: connectionID,
			Removed:      removed,
			Gateway:      gatewayState(closed),
		})
	})

	return router
}

func gatewayState(r Result) string {
	switch r.Outcome {
	case Delivered:
		return "closed"
	case Gone:
		return "gone"
	default:
		return "failed"
	}
}

func nonNil(conns []connectiondao.Connection) []connectiondao.Connection {
	if conns == nil {
		return []connectiondao.Connection{}
	}
	return conns
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError reports tag to the caller and logs cause alongside it.
func writeError(w http.ResponseWriter, req *http.Request, tag, cause error) {
	status := StatusCode(tag)
	zerolog.Ctx(req.Context()).Warn().Err(tag).AnErr("cause", cause).Int("status", status).Msg("admin request failed")

	body := tag.Error()
	if status >= http.StatusInternalServerError {
		body = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: body})
}
