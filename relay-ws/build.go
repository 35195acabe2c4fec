package relayws

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	relaycli "github.com/chatrelay/relay-go-utils/relay-cli"
	relayddb "github.com/chatrelay/relay-go-utils/relay-ddb"
	relaysecret "github.com/chatrelay/relay-go-utils/relay-secret"
	"github.com/chatrelay/relay-go-utils/relay-ws/connectiondao"
	"github.com/prometheus/client_golang/prometheus"
)

// Overrides is the JSON document stored in the --config-secret secret. Empty
// fields leave the flag value in place.
type Overrides struct {
	TableName       string `json:"tableName"`
	FanOut          string `json:"fanOut"`
	DefaultEndpoint string `json:"defaultEndpoint"`
}

func (o Overrides) apply() {
	if o.TableName != "" {
		relayddb.DDBOpts.TableName = o.TableName
	}
	if o.FanOut != "" {
		RelayOpts.FanOut = o.FanOut
	}
	if o.DefaultEndpoint != "" {
		RelayOpts.DefaultEndpoint = o.DefaultEndpoint
	}
}

// LoadOverrides applies the configured secret, if any, over the parsed flags.
func LoadOverrides(s *session.Session) error {
	if relaysecret.SecretOpts.ConfigSecret == "" {
		return nil
	}
	var overrides Overrides
	if err := relaysecret.LoadSecret(s, relaysecret.SecretOpts.ConfigSecret, &overrides); err != nil {
		return err
	}
	overrides.apply()
	return nil
}

// ErrNoSharedTable is returned for processes that only act on connections
// registered by the handler when no table or endpoint is configured.
var ErrNoSharedTable = errors.New("no connections table configured, set --table-name or --ddb-endpoint")

// BuildRegistry returns the DynamoDB registry, or an in-memory one when
// running in console mode with no table or endpoint configured.
func BuildRegistry(s *session.Session) (Registry, error) {
	if relaycli.CommonOpts.Console && relayddb.DDBOpts.TableName == "" && relayddb.DDBOpts.Endpoint == "" {
		return connectiondao.NewMemory(), nil
	}

	api, err := relayddb.DynamoDBAPI(s)
	if err != nil {
		return nil, fmt.Errorf("building dynamodb client: %w", err)
	}
	if relayddb.DDBOpts.TableName != "" {
		return connectiondao.New(api, relayddb.DDBOpts.TableName), nil
	}
	return connectiondao.Build(api, relaycli.CommonOpts.Env), nil
}

// BuildSharedRegistry is BuildRegistry without the in-memory fallback. The
// admin API and the sweeper never see the handler's connections through a
// process-local registry, so console mode must name a table or endpoint.
func BuildSharedRegistry(s *session.Session) (Registry, error) {
	if relaycli.CommonOpts.Console && relayddb.DDBOpts.TableName == "" && relayddb.DDBOpts.Endpoint == "" {
		return nil, ErrNoSharedTable
	}
	return BuildRegistry(s)
}

// BuildMetrics records to registerer in console mode and to CloudWatch
// otherwise.
func BuildMetrics(service relaycli.Service, s *session.Session, registerer prometheus.Registerer) relaycli.Recorder {
	if relaycli.CommonOpts.Console {
		return relaycli.NewPromMetrics(service, registerer)
	}
	return relaycli.NewMetrics(service, cloudwatch.New(s))
}
