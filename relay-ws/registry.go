package relayws

import (
	"context"

	"github.com/chatrelay/relay-go-utils/relay-ws/connectiondao"
)

// Registry is the durable client to connection mapping. connectiondao.DAO and
// connectiondao.Memory implement it.
type Registry interface {
	Put(ctx context.Context, conn connectiondao.Connection) error
	QueryByClient(ctx context.Context, clientID string) ([]connectiondao.Connection, error)
	QueryByConnection(ctx context.Context, connectionID string) ([]connectiondao.Connection, error)
	ScanAll(ctx context.Context) ([]connectiondao.Connection, error)
	Delete(ctx context.Context, key connectiondao.Key) error
	BatchDelete(ctx context.Context, keys []connectiondao.Key) error
}

// recipient is one live connection and every registry row that points at it.
type recipient struct {
	connectionID string
	endpoint     string
	owners       []connectiondao.Key
}

// groupByConnection collapses rows sharing a connection id, keeping the order
// in which each connection id first appears.
func groupByConnection(conns []connectiondao.Connection) []recipient {
	var (
		index      = map[string]int{}
		recipients []recipient
	)
	for _, c := range conns {
		i, ok := index[c.ConnectionID]
		if !ok {
			i = len(recipients)
			index[c.ConnectionID] = i
			recipients = append(recipients, recipient{connectionID: c.ConnectionID})
		}
		if recipients[i].endpoint == "" {
			recipients[i].endpoint = c.Endpoint
		}
		recipients[i].owners = append(recipients[i].owners, c.Key())
	}
	return recipients
}
