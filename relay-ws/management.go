package relayws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi/apigatewaymanagementapiiface"
)

// ManagementSenders builds API Gateway Management API senders and caches
// their clients by endpoint for the life of the process.
type ManagementSenders struct {
	newClient func(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI

	mu      sync.RWMutex
	clients map[string]apigatewaymanagementapiiface.ApiGatewayManagementApiAPI
}

func NewManagementSenders(s *session.Session) *ManagementSenders {
	return NewManagementSendersWith(func(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI {
		return apigatewaymanagementapi.New(s, aws.NewConfig().WithEndpoint(endpoint))
	})
}

// NewManagementSendersWith uses newClient to build the client for each new
// endpoint.
func NewManagementSendersWith(newClient func(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI) *ManagementSenders {
	return &ManagementSenders{
		newClient: newClient,
		clients:   map[string]apigatewaymanagementapiiface.ApiGatewayManagementApiAPI{},
	}
}

// For is a SenderFactory.
func (m *ManagementSenders) For(endpoint string) Sender {
	return managementSender{client: m.client(endpoint)}
}

func (m *ManagementSenders) client(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI {
	m.mu.RLock()
	if client, ok := m.clients[endpoint]; ok {
		m.mu.RUnlock()
		return client
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if client, ok := m.clients[endpoint]; ok {
		return client
	}
	client := m.newClient(endpoint)
	m.clients[endpoint] = client
	return client
}

type managementSender struct {
	client apigatewaymanagementapiiface.ApiGatewayManagementApiAPI
}

func (s managementSender) Send(ctx context.Context, connectionID string, data []byte) Result {
	_, err := s.client.PostToConnectionWithContext(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(connectionID),
		Data:         data,
	})
	return resultOf("posting to", connectionID, err)
}

func (s managementSender) Check(ctx context.Context, connectionID string) Result {
	_, err := s.client.GetConnectionWithContext(ctx, &apigatewaymanagementapi.GetConnectionInput{
		ConnectionId: aws.String(connectionID),
	})
	return resultOf("checking", connectionID, err)
}

func (s managementSender) Disconnect(ctx context.Context, connectionID string) Result {
	_, err := s.client.DeleteConnectionWithContext(ctx, &apigatewaymanagementapi.DeleteConnectionInput{
		ConnectionId: aws.String(connectionID),
	})
	return resultOf("closing", connectionID, err)
}

func resultOf(op, connectionID string, err error) Result {
	switch {
	case err == nil:
		return Result{Outcome: Delivered}
	case isGone(err):
		return Result{Outcome: Gone, Err: fmt.Errorf("%w: %v", ErrConnectionGone, connectionID)}
	default:
		return Result{Outcome: Failed, Err: fmt.Errorf("%v connection %v: %w", op, connectionID, err)}
	}
}

// isGone reports whether err is a GoneException (HTTP 410), meaning the
// WebSocket connection no longer exists.
func isGone(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) && aerr.Code() == apigatewaymanagementapi.ErrCodeGoneException {
		return true
	}
	var rerr awserr.RequestFailure
	return errors.As(err, &rerr) && rerr.StatusCode() == http.StatusGone
}
