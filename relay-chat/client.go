// Package relaychat is the line oriented terminal client for the relay.
package relaychat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	relayws "github.com/chatrelay/relay-go-utils/relay-ws"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const Usage = `
Usage:
@client message to send to that client
@everybody message to broadcast to all connected clients
#client command to send to that client
`

const prompt = "> "

var ErrBadLine = errors.New("invalid format, use '@target message' or '#target command'")

// ParseLine splits a line at its first whitespace into target and message.
// The target must carry the '@' or '#' prefix; it is sent as typed.
func ParseLine(line string) (relayws.Envelope, error) {
	if line == "" || (line[0] != relayws.MessagePrefix && line[0] != relayws.CommandPrefix) {
		return relayws.Envelope{}, ErrBadLine
	}
	i := strings.IndexAny(line, " \t")
	if i == -1 {
		return relayws.Envelope{}, ErrBadLine
	}
	return relayws.NewEnvelope(line[:i], line[i+1:]), nil
}

// URL builds the connection url for clientID from the server url.
func URL(server, clientID string) string {
	return strings.TrimSuffix(server, "/") + "/?clientId=" + url.QueryEscape(clientID)
}

type Client struct {
	conn   *websocket.Conn
	logger zerolog.Logger
	wmu    sync.Mutex // guards writes to conn

	mu  sync.Mutex // guards out
	out io.Writer

	closing atomic.Bool
}

func Dial(ctx context.Context, server, clientID string, out io.Writer, logger zerolog.Logger) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, URL(server, clientID), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connecting to %v as %v: %v: %w", server, clientID, resp.Status, err)
		}
		return nil, fmt.Errorf("connecting to %v as %v: %w", server, clientID, err)
	}
	logger.Info().Str("server", server).Str("client_id", clientID).Msg("connected")

	return &Client{
		conn:   conn,
		logger: logger,
		out:    out,
	}, nil
}

// Run prints received frames and sends one envelope per valid line of in. It
// returns when the connection closes; the end of in closes it.
func (c *Client) Run(in io.Reader) error {
	go func() {
		c.sendLines(in)
		_ = c.Close()
	}()
	return c.receive()
}

func (c *Client) Send(env relayws.Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	c.logger.Debug().RawJSON("envelope", data).Msg("sending")

	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
	return c.conn.Close()
}

func (c *Client) receive() error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closing.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.print("\nConnection closed\n")
				return nil
			}
			return fmt.Errorf("reading from connection: %w", err)
		}
		c.print("\n" + string(data) + "\n" + prompt)
	}
}

func (c *Client) sendLines(in io.Reader) {
	c.print(prompt)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			c.print(prompt)
			continue
		}

		env, err := ParseLine(line)
		if err != nil {
			c.logger.Warn().Str("line", line).Msg(err.Error())
			c.print(prompt)
			continue
		}
		if err := c.Send(env); err != nil {
			c.logger.Error().Err(err).Msg("failed to send")
			return
		}
		c.print(prompt)
	}
}

func (c *Client) print(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = io.WriteString(c.out, s)
}
