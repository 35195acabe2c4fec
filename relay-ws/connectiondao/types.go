package connectiondao

// ConnectionIndex is the GSI keyed on connection id alone.
const ConnectionIndex = "ConnectionIdIndex"

// Connection is one live WebSocket session owned by a client. A client may
// hold several at once, one per device.
type Connection struct {
	ClientID     string `json:"clientId" dynamodbav:"clientId" ddb:"hash"`
	ConnectionID string `json:"connectionId" dynamodbav:"connectionId" ddb:"range;gsi_hash:ConnectionIdIndex"`
	Endpoint     string `json:"endpoint,omitempty" dynamodbav:"endpoint,omitempty"`
	ConnectedAt  int64  `json:"connectedAt,omitempty" dynamodbav:"connected_at,omitempty"`
	TTL          int64  `json:"ttl,omitempty" dynamodbav:"ttl,omitempty"`
}

// Key is the primary key of a Connection.
type Key struct {
	ClientID     string `dynamodbav:"clientId"`
	ConnectionID string `dynamodbav:"connectionId"`
}

func (c Connection) Key() Key {
	return Key{ClientID: c.ClientID, ConnectionID: c.ConnectionID}
}

// Keys returns the primary keys of conns in order.
func Keys(conns []Connection) []Key {
	keys := make([]Key, len(conns))
	for i, c := range conns {
		keys[i] = c.Key()
	}
	return keys
}
