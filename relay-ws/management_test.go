package relayws

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi/apigatewaymanagementapiiface"
	"github.com/tj/assert"
)

type fakeManagementAPI struct {
	apigatewaymanagementapiiface.ApiGatewayManagementApiAPI

	mu      sync.Mutex
	posts   map[string][]byte
	gets    []string
	deletes []string
	err     error
}

func (f *fakeManagementAPI) PostToConnectionWithContext(_ aws.Context, input *apigatewaymanagementapi.PostToConnectionInput, _ ...request.Option) (*apigatewaymanagementapi.PostToConnectionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.posts == nil {
		f.posts = map[string][]byte{}
	}
	f.posts[aws.StringValue(input.ConnectionId)] = input.Data
	return &apigatewaymanagementapi.PostToConnectionOutput{}, nil
}

func (f *fakeManagementAPI) GetConnectionWithContext(_ aws.Context, input *apigatewaymanagementapi.GetConnectionInput, _ ...request.Option) (*apigatewaymanagementapi.GetConnectionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, aws.StringValue(input.ConnectionId))
	if f.err != nil {
		return nil, f.err
	}
	return &apigatewaymanagementapi.GetConnectionOutput{}, nil
}

func (f *fakeManagementAPI) DeleteConnectionWithContext(_ aws.Context, input *apigatewaymanagementapi.DeleteConnectionInput, _ ...request.Option) (*apigatewaymanagementapi.DeleteConnectionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, aws.StringValue(input.ConnectionId))
	if f.err != nil {
		return nil, f.err
	}
	return &apigatewaymanagementapi.DeleteConnectionOutput{}, nil
}

func TestManagementSenders(t *testing.T) {
	ctx := context.Background()

	t.Run("caches clients by endpoint", func(t *testing.T) {
		var built []string
		senders := NewManagementSendersWith(func(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI {
			built = append(built, endpoint)
			return &fakeManagementAPI{}
		})

		senders.For("https://a.example.com/dev")
		senders.For("https://a.example.com/dev")
		senders.For("https://b.example.com/dev")
		assert.Equal(t, []string{"https://a.example.com/dev", "https://b.example.com/dev"}, built)
	})

	t.Run("send and check", func(t *testing.T) {
		api := &fakeManagementAPI{}
		sender := NewManagementSendersWith(func(string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI { return api }).For("https://a.example.com/dev")

		assert.True(t, sender.Send(ctx, "c1", []byte("hello")).OK())
		assert.Equal(t, []byte("hello"), api.posts["c1"])

		assert.True(t, sender.Check(ctx, "c1").OK())
		assert.Equal(t, []string{"c1"}, api.gets)
	})

	t.Run("disconnect deletes the connection", func(t *testing.T) {
		api := &fakeManagementAPI{}
		sender := NewManagementSendersWith(func(string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI { return api }).For("https://a.example.com/dev")

		assert.True(t, sender.Disconnect(ctx, "c1").OK())
		assert.Equal(t, []string{"c1"}, api.deletes)
	})

	testCases := map[string]struct {
		err  error
		want Outcome
	}{
		"gone exception": {
			err:  awserr.New(apigatewaymanagementapi.ErrCodeGoneException, "gone", nil),
			want: Gone,
		},
		"status 410": {
			err:  awserr.NewRequestFailure(awserr.New("UnknownError", "gone", nil), 410, "req-1"),
			want: Gone,
		},
		"forbidden": {
			err:  awserr.NewRequestFailure(awserr.New(apigatewaymanagementapi.ErrCodeForbiddenException, "nope", nil), 403, "req-2"),
			want: Failed,
		},
		"throttled": {
			err:  awserr.New(apigatewaymanagementapi.ErrCodeLimitExceededException, "slow down", nil),
			want: Failed,
		},
		"plain error": {
			err:  errors.New("connection reset"),
			want: Failed,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			api := &fakeManagementAPI{err: tc.err}
			sender := NewManagementSendersWith(func(string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI { return api }).For("x")

			result := sender.Send(ctx, "c1", []byte("x"))
			assert.Equal(t, tc.want, result.Outcome)
			assert.Equal(t, tc.want == Gone, errors.Is(result.Err, ErrConnectionGone))

			assert.Equal(t, tc.want, sender.Check(ctx, "c1").Outcome)
			assert.Equal(t, tc.want, sender.Disconnect(ctx, "c1").Outcome)
		})
	}
}
