package integration

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pitabwire/coreitems/internal/transport"
)

// HostClient is a websocket client standing in for a game host process. It
// records every frame it skips while waiting for a specific one.
type HostClient struct {
	t       *testing.T
	conn    *websocket.Conn
	skipped []transport.OutboundFrame
}

// DialHost connects a host client with the given token and waits until the
// hub has registered it.
func (h *TestHarness) DialHost(token string) *HostClient {
	h.t.Helper()

	before := h.Hub.Connections()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/v1/host/ws"
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		h.t.Fatalf("dial host bridge: %v", err)
	}
	resp.Body.Close()

	c := &HostClient{t: h.t, conn: conn}
	h.t.Cleanup(c.Close)

	deadline := time.Now().Add(2 * time.Second)
	for h.Hub.Connections() <= before {
		if time.Now().After(deadline) {
			h.t.Fatalf("host connection was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return c
}

// Send writes one inbound frame.
func (c *HostClient) Send(f transport.InboundFrame) {
	c.t.Helper()
	if err := c.conn.WriteJSON(f); err != nil {
		c.t.Fatalf("send %s frame: %v", f.Type, err)
	}
}

// Next reads the next outbound frame.
func (c *HostClient) Next(timeout time.Duration) transport.OutboundFrame {
	c.t.Helper()
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		c.t.Fatalf("set read deadline: %v", err)
	}
	var f transport.OutboundFrame
	if err := c.conn.ReadJSON(&f); err != nil {
		c.t.Fatalf("read frame: %v", err)
	}
	return f
}

// Expect reads frames until one of the given type arrives. Frames of other
// types are kept and available from Skipped.
func (c *HostClient) Expect(frameType string) transport.OutboundFrame {
	c.t.Helper()
	for range 32 {
		f := c.Next(2 * time.Second)
		if f.Type == frameType {
			return f
		}
		c.skipped = append(c.skipped, f)
	}
	c.t.Fatalf("no %s frame received", frameType)
	return transport.OutboundFrame{}
}

// Skipped returns the frames passed over by Expect.
func (c *HostClient) Skipped() []transport.OutboundFrame {
	return c.skipped
}

// Close closes the connection.
func (c *HostClient) Close() {
	_ = c.conn.Close()
}
