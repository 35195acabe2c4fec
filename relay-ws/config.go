// Package relayws relays chat messages between clients connected to an API
// Gateway WebSocket API.
//
// A Lifecycle keeps the connection registry in step with $connect and
// $disconnect events, a Router classifies each envelope's target and resolves
// it against the registry, and a Reconciler pushes each payload and repairs
// the registry when the gateway reports a connection gone. Handler ties them
// to API Gateway events.
package relayws

import (
	"context"
	"fmt"
	"strings"
	"time"

	relaycli "github.com/chatrelay/relay-go-utils/relay-cli"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// FanOut decides which of a client's connections receive a direct message or
// command acknowledgement.
type FanOut int

const (
	// FanOutAll delivers to every connection registered for the client.
	FanOutAll FanOut = iota
	// FanOutFirst delivers only to the first connection the registry returns.
	FanOutFirst
)

func (f FanOut) String() string {
	switch f {
	case FanOutAll:
		return "all"
	case FanOutFirst:
		return "first"
	default:
		return fmt.Sprintf("FanOut(%d)", int(f))
	}
}

func ParseFanOut(s string) (FanOut, error) {
	switch strings.ToLower(s) {
	case "", "all":
		return FanOutAll, nil
	case "first":
		return FanOutFirst, nil
	default:
		return FanOutAll, fmt.Errorf("unknown fan-out policy %q: expected all or first", s)
	}
}

const (
	defaultConcurrency = 50
	// API Gateway closes WebSocket connections after two hours.
	defaultConnTTL = 2 * time.Hour
)

// Config is shared by every relay component. It is built once at start up
// and passed to each constructor.
type Config struct {
	Logger      zerolog.Logger
	Metrics     relaycli.Recorder
	FanOut      FanOut
	Concurrency int           // max concurrent pushes per broadcast or sweep
	ConnTTL     time.Duration // TTL stamped on connection records

	// DefaultEndpoint is the management endpoint used by the sweeper for
	// records stored without one.
	DefaultEndpoint string

	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Metrics == nil {
		c.Metrics = relaycli.NopMetrics{}
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.ConnTTL <= 0 {
		c.ConnTTL = defaultConnTTL
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// log prefers the request scoped logger carried by ctx.
func (c Config) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &c.Logger
}

var RelayOpts struct {
	FanOut          string
	Concurrency     int
	ConnTTL         time.Duration
	DefaultEndpoint string
}

var FanOutFlag = relaycli.StringFlag("fan-out", "direct message policy for clients with several connections: all or first", &RelayOpts.FanOut, "all")
var ConcurrencyFlag = relaycli.IntFlag("concurrency", "max concurrent pushes per broadcast", &RelayOpts.Concurrency, defaultConcurrency)
var ConnTTLFlag = relaycli.DurationFlag("conn-ttl", "TTL for connection records", &RelayOpts.ConnTTL, defaultConnTTL)
var DefaultEndpointFlag = relaycli.StringFlag("default-endpoint", "management endpoint for records stored without one", &RelayOpts.DefaultEndpoint)

var RelayFlags = []cli.Flag{
	FanOutFlag,
	ConcurrencyFlag,
	ConnTTLFlag,
	DefaultEndpointFlag,
}

// ConfigFromFlags builds a Config from the parsed RelayFlags.
func ConfigFromFlags(logger zerolog.Logger, metrics relaycli.Recorder) (Config, error) {
	fanOut, err := ParseFanOut(RelayOpts.FanOut)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Logger:          logger,
		Metrics:         metrics,
		FanOut:          fanOut,
		Concurrency:     RelayOpts.Concurrency,
		ConnTTL:         RelayOpts.ConnTTL,
		DefaultEndpoint: RelayOpts.DefaultEndpoint,
	}, nil
}
