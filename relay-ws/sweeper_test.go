package relayws

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/chatrelay/relay-go-utils/relay-ws/connectiondao"
	"github.com/tj/assert"
)

func TestSweeper(t *testing.T) {
	ctx := context.Background()
	withEndpoint := func(c connectiondao.Connection, endpoint string) connectiondao.Connection {
		c.Endpoint = endpoint
		return c
	}

	t.Run("removes gone connections", func(t *testing.T) {
		registry := newSpyRegistry(
			withEndpoint(conn("alice", "c1"), "https://a/dev"),
			withEndpoint(conn("bob", "c2"), "https://a/dev"),
			withEndpoint(conn("carol", "c2"), "https://a/dev"),
			withEndpoint(conn("dave", "c3"), "https://b/dev"),
		)
		sender := newFakeSender().set("c2", Gone).set("c3", Failed)
		var endpoints []string

		report, err := NewSweeper(testConfig(), registry, sender.factory(&endpoints)).Sweep(ctx)
		assert.NoError(t, err)
		assert.Equal(t, SweepReport{Checked: 3, Alive: 1, Gone: 1, Failed: 1}, report)

		left, err := registry.ScanAll(ctx)
		assert.NoError(t, err)
		assert.Len(t, left, 2)

		sort.Strings(endpoints)
		assert.Equal(t, []string{"https://a/dev", "https://a/dev", "https://b/dev"}, endpoints)
		assert.Empty(t, sender.received("c1"))
	})

	t.Run("falls back to the default endpoint", func(t *testing.T) {
		registry := newSpyRegistry(conn("alice", "c1"))
		cfg := testConfig()
		cfg.DefaultEndpoint = "https://default/dev"
		var endpoints []string

		report, err := NewSweeper(cfg, registry, newFakeSender().factory(&endpoints)).Sweep(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 1, report.Alive)
		assert.Equal(t, []string{"https://default/dev"}, endpoints)
	})

	t.Run("skips records without an endpoint", func(t *testing.T) {
		registry := newSpyRegistry(conn("alice", "c1"))
		sender := newFakeSender()

		report, err := NewSweeper(testConfig(), registry, sender.factory(nil)).Sweep(ctx)
		assert.NoError(t, err)
		assert.Equal(t, SweepReport{Skipped: 1}, report)
		assert.Empty(t, sender.checked)
	})

	t.Run("scan failure", func(t *testing.T) {
		registry := newSpyRegistry()
		registry.err = errors.New("unavailable")

		_, err := NewSweeper(testConfig(), registry, newFakeSender().factory(nil)).Sweep(ctx)
		assert.True(t, errors.Is(err, ErrStore))
	})
}
