// Package client is a minimal WebSocket chat client used by the integration
// tests and local tooling.
package client

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/roomcast/roomcast/pkg/protocol"
)

// Client is a single WebSocket connection speaking the JSON frame protocol.
type Client struct {
	conn     net.Conn
	incoming chan protocol.Frame
	done     chan struct{}
	once     sync.Once
}

// Dial connects to a server and starts the read loop. token authenticates
// the connection via the upgrade query parameter.
func Dial(ctx context.Context, addr, token string) (*Client, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	if token != "" {
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}
	conn, _, _, err := ws.Dial(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Host, err)
	}
	c := &Client{
		conn:     conn,
		incoming: make(chan protocol.Frame, 64),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.incoming)
	for {
		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			return
		}
		frame, err := protocol.DecodeFrame(data)
		if err != nil {
			continue
		}
		select {
		case c.incoming <- frame:
		case <-c.done:
			return
		}
	}
}

// Frames returns the stream of decoded server frames. The channel closes
// when the connection drops.
func (c *Client) Frames() <-chan protocol.Frame {
	return c.incoming
}

// Next waits for the next server frame.
func (c *Client) Next(timeout time.Duration) (protocol.Frame, error) {
	select {
	case frame, ok := <-c.incoming:
		if !ok {
			return protocol.Frame{}, fmt.Errorf("connection closed")
		}
		return frame, nil
	case <-time.After(timeout):
		return protocol.Frame{}, fmt.Errorf("timed out waiting for frame")
	}
}

// Join sends a JOIN_ROOM frame.
func (c *Client) Join(roomID string, force bool) error {
	return c.send(protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: roomID, Force: force})
}

// Send sends a SEND_MESSAGE frame.
func (c *Client) Send(roomID, text string) error {
	return c.send(protocol.TypeSendMessage, protocol.SendMessage{RoomID: roomID, Text: text})
}

// Typing sends a TYPING frame.
func (c *Client) Typing(roomID string, isTyping bool) error {
	return c.send(protocol.TypeTyping, protocol.Typing{RoomID: roomID, IsTyping: isTyping})
}

// ReadReceipt sends a READ_RECEIPT frame.
func (c *Client) ReadReceipt(roomID string) error {
	return c.send(protocol.TypeReadReceipt, protocol.ReadReceipt{RoomID: roomID})
}

// SendRaw writes raw bytes as a single text frame. Used by tests to exercise
// malformed input.
func (c *Client) SendRaw(data []byte) error {
	if err := wsutil.WriteClientText(c.conn, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *Client) send(ft protocol.FrameType, payload any) error {
	data, err := protocol.EncodeFrame(ft, payload)
	if err != nil {
		return err
	}
	return c.SendRaw(data)
}

// Close tears the connection down.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}
