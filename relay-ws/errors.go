package relayws

import (
	"errors"
	"net/http"
)

var (
	ErrTargetMissing      = errors.New("target field is missing or empty")
	ErrBadPrefix          = errors.New("invalid target prefix, use '@' for messages or '#' for commands")
	ErrRecipientMissing   = errors.New("target names no recipient")
	ErrMalformedEnvelope  = errors.New("malformed envelope")
	ErrMessageMissing     = errors.New("message field is missing")
	ErrUnknownAction      = errors.New("unknown action")
	ErrClientIDMissing    = errors.New("clientId query parameter is missing")
	ErrRecipientNotFound  = errors.New("no connection found for clientId")
	ErrConnectionNotFound = errors.New("connection not found in registry")
	ErrConnectionGone     = errors.New("connection is gone")
	ErrStore              = errors.New("connection registry failure")
	ErrDelivery           = errors.New("delivery failure")
)

// StatusCode maps an error from any relay operation to the HTTP status
// returned to API Gateway.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrBadPrefix),
		errors.Is(err, ErrRecipientMissing),
		errors.Is(err, ErrMalformedEnvelope),
		errors.Is(err, ErrMessageMissing),
		errors.Is(err, ErrUnknownAction),
		errors.Is(err, ErrClientIDMissing):
		return http.StatusBadRequest
	case errors.Is(err, ErrTargetMissing),
		errors.Is(err, ErrRecipientNotFound),
		errors.Is(err, ErrConnectionNotFound),
		errors.Is(err, ErrConnectionGone):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
