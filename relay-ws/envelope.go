package relayws

import (
	"encoding/json"
	"fmt"
)

// ActionSendMessage is the only action clients send. API Gateway selects the
// route on it.
const ActionSendMessage = "sendMessage"

// Envelope is the unit a client sends over its connection.
type Envelope struct {
	Action  string `json:"action"`
	Target  string `json:"target"`
	Message string `json:"message"`
}

// ParseEnvelope decodes and validates an envelope. A missing target is left
// empty for Classify to report.
func ParseEnvelope(body string) (Envelope, error) {
	var raw struct {
		Action  *string `json:"action"`
		Target  *string `json:"target"`
		Message *string `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if raw.Action == nil || *raw.Action != ActionSendMessage {
		action := ""
		if raw.Action != nil {
			action = *raw.Action
		}
		return Envelope{}, fmt.Errorf("%w %q", ErrUnknownAction, action)
	}
	if raw.Message == nil {
		return Envelope{}, ErrMessageMissing
	}

	env := Envelope{
		Action:  *raw.Action,
		Message: *raw.Message,
	}
	if raw.Target != nil {
		env.Target = *raw.Target
	}
	return env, nil
}

// NewEnvelope builds a sendMessage envelope.
func NewEnvelope(target, message string) Envelope {
	return Envelope{
		Action:  ActionSendMessage,
		Target:  target,
		Message: message,
	}
}

func (e Envelope) Marshal() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshalling envelope: %w", err)
	}
	return b, nil
}
