package protocol

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/talgya/blockswarm/internal/action"
)

// Transport is a bidirectional message channel to the match server. The
// websocket client below is the real one; the in-process arena provides
// another for tests and local matches.
type Transport interface {
	Send(msg Message) error
	Receive() (Message, error)
	Close() error
}

// Client is one agent's websocket connection.
type Client struct {
	conn *websocket.Conn
}

// Dial connects and authenticates one agent. The returned client is ready
// to receive the sim-start message.
func Dial(ctx context.Context, url, user, password string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{conn: conn}

	auth, err := NewMessage(TypeAuthRequest, AuthRequest{User: user, Password: password})
	if err != nil {
		c.Close()
		return nil, err
	}
	if err := c.Send(auth); err != nil {
		c.Close()
		return nil, err
	}

	reply, err := c.Receive()
	if err != nil {
		c.Close()
		return nil, err
	}
	if reply.Type != TypeAuthResponse {
		c.Close()
		return nil, fmt.Errorf("auth %s: unexpected reply %q", user, reply.Type)
	}
	var resp AuthResponse
	if err := reply.Decode(&resp); err != nil {
		c.Close()
		return nil, err
	}
	if !resp.OK() {
		c.Close()
		return nil, fmt.Errorf("auth %s: rejected", user)
	}
	return c, nil
}

// Send writes one envelope.
func (c *Client) Send(msg Message) error {
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

// Receive reads the next envelope.
func (c *Client) Receive() (Message, error) {
	var msg Message
	if err := c.conn.ReadJSON(&msg); err != nil {
		return Message{}, fmt.Errorf("receive: %w", err)
	}
	return msg, nil
}

// Close tears the connection down.
func (c *Client) Close() error { return c.conn.Close() }

// EncodeAction converts a planned action into its wire form for the given
// request id.
func EncodeAction(id int, act action.Action) (Message, error) {
	msg := ActionMessage{ID: id, Action: act.Kind.String()}
	switch act.Kind {
	case action.Move:
		for _, d := range act.Directions {
			msg.Params = append(msg.Params, d.String())
		}
	case action.Rotate:
		msg.Params = []string{act.Rotation.String()}
	case action.Attach, action.Detach, action.Request:
		msg.Params = []string{act.Direction.String()}
	case action.Connect:
		msg.Params = []string{act.Peer, strconv.Itoa(act.Target.X), strconv.Itoa(act.Target.Y)}
	case action.Disconnect:
		msg.Params = []string{
			strconv.Itoa(act.Target.X), strconv.Itoa(act.Target.Y),
			strconv.Itoa(act.Target2.X), strconv.Itoa(act.Target2.Y),
		}
	case action.Adopt, action.Submit:
		msg.Params = []string{act.Name}
	case action.Clear:
		msg.Params = []string{strconv.Itoa(act.Target.X), strconv.Itoa(act.Target.Y)}
	}
	return NewMessage(TypeAction, msg)
}
