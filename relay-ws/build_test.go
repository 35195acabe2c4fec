package relayws

import (
	"errors"
	"testing"

	relaycli "github.com/chatrelay/relay-go-utils/relay-cli"
	relayddb "github.com/chatrelay/relay-go-utils/relay-ddb"
	"github.com/chatrelay/relay-go-utils/relay-ws/connectiondao"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tj/assert"
)

func TestOverrides(t *testing.T) {
	defer func(table, fanOut, endpoint string) {
		relayddb.DDBOpts.TableName, RelayOpts.FanOut, RelayOpts.DefaultEndpoint = table, fanOut, endpoint
	}(relayddb.DDBOpts.TableName, RelayOpts.FanOut, RelayOpts.DefaultEndpoint)

	relayddb.DDBOpts.TableName = "flag-table"
	RelayOpts.FanOut = "all"
	RelayOpts.DefaultEndpoint = "https://flag/dev"

	Overrides{FanOut: "first"}.apply()
	assert.Equal(t, "flag-table", relayddb.DDBOpts.TableName)
	assert.Equal(t, "first", RelayOpts.FanOut)
	assert.Equal(t, "https://flag/dev", RelayOpts.DefaultEndpoint)
}

func TestBuildConsole(t *testing.T) {
	relaycli.CommonOpts.Console = true
	defer func() { relaycli.CommonOpts.Console = false }()

	registry, err := BuildRegistry(relayddb.Session())
	assert.NoError(t, err)
	_, ok := registry.(*connectiondao.Memory)
	assert.True(t, ok)

	_, ok = BuildMetrics(relaycli.NewService("test"), nil, prometheus.NewRegistry()).(*relaycli.PromMetrics)
	assert.True(t, ok)
}

func TestBuildSharedRegistry(t *testing.T) {
	defer func(console bool, table, endpoint string) {
		relaycli.CommonOpts.Console, relayddb.DDBOpts.TableName, relayddb.DDBOpts.Endpoint = console, table, endpoint
	}(relaycli.CommonOpts.Console, relayddb.DDBOpts.TableName, relayddb.DDBOpts.Endpoint)

	relaycli.CommonOpts.Console = true
	relayddb.DDBOpts.TableName = ""
	relayddb.DDBOpts.Endpoint = ""

	t.Run("console without a table is refused", func(t *testing.T) {
		registry, err := BuildSharedRegistry(relayddb.Session())
		assert.True(t, errors.Is(err, ErrNoSharedTable))
		assert.Nil(t, registry)
	})

	t.Run("console with a table uses dynamodb", func(t *testing.T) {
		relayddb.DDBOpts.TableName = "local-relay--connections"
		defer func() { relayddb.DDBOpts.TableName = "" }()

		registry, err := BuildSharedRegistry(relayddb.Session())
		assert.NoError(t, err)
		_, ok := registry.(*connectiondao.DAO)
		assert.True(t, ok)
	})
}

func TestConfigFromFlags(t *testing.T) {
	defer func(fanOut string) { RelayOpts.FanOut = fanOut }(RelayOpts.FanOut)

	RelayOpts.FanOut = "first"
	cfg, err := ConfigFromFlags(relaycli.Logger(relaycli.NewService("test")), nil)
	assert.NoError(t, err)
	assert.Equal(t, FanOutFirst, cfg.FanOut)

	RelayOpts.FanOut = "some"
	_, err = ConfigFromFlags(relaycli.Logger(relaycli.NewService("test")), nil)
	assert.Error(t, err)
}
