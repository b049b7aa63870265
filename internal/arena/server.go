package arena

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/talgya/blockswarm/internal/protocol"
)

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Send(msg protocol.Message) error {
	return t.conn.WriteJSON(msg)
}

func (t *wsTransport) Receive() (protocol.Message, error) {
	var msg protocol.Message
	if err := t.conn.ReadJSON(&msg); err != nil {
		return protocol.Message{}, err
	}
	return msg, nil
}

func (t *wsTransport) Close() error { return t.conn.Close() }

type joinedAgent struct {
	id string
	tr protocol.Transport
}

// Listener accepts websocket connections and authenticates agents. Once the
// expected number have joined, the transports are handed to a Match.
type Listener struct {
	log      *slog.Logger
	password string
	srv      *http.Server
	ln       net.Listener
	joined   chan joinedAgent

	upgrader websocket.Upgrader
}

// Listen starts accepting agent connections on addr.
func Listen(log *slog.Logger, addr, password string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	l := &Listener{
		log:      log.With("component", "arena-listener"),
		password: password,
		ln:       ln,
		joined:   make(chan joinedAgent),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", l.handle)
	l.srv = &http.Server{Handler: mux}
	go func() {
		if err := l.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			l.log.Error("serve", "err", err)
		}
	}()
	l.log.Info("listening", "addr", ln.Addr().String())
	return l, nil
}

// Addr returns the bound address, useful when addr was ":0".
func (l *Listener) Addr() string { return l.ln.Addr().String() }

func (l *Listener) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.log.Warn("upgrade failed", "err", err)
		return
	}
	tr := &wsTransport{conn: conn}

	msg, err := tr.Receive()
	if err != nil || msg.Type != protocol.TypeAuthRequest {
		l.log.Warn("bad handshake", "err", err)
		tr.Close()
		return
	}
	var auth protocol.AuthRequest
	if err := msg.Decode(&auth); err != nil {
		tr.Close()
		return
	}

	result := "ok"
	if l.password != "" && auth.Password != l.password {
		result = "fail"
	}
	reply, err := protocol.NewMessage(protocol.TypeAuthResponse, protocol.AuthResponse{Result: result})
	if err != nil {
		tr.Close()
		return
	}
	if err := tr.Send(reply); err != nil {
		tr.Close()
		return
	}
	if result != "ok" {
		l.log.Warn("auth rejected", "user", auth.User)
		tr.Close()
		return
	}
	l.log.Info("agent joined", "user", auth.User)
	l.joined <- joinedAgent{id: auth.User, tr: tr}
}

// WaitForAgents blocks until count distinct agents have authenticated.
func (l *Listener) WaitForAgents(ctx context.Context, count int) (map[string]protocol.Transport, error) {
	transports := make(map[string]protocol.Transport, count)
	for len(transports) < count {
		select {
		case j := <-l.joined:
			if old, dup := transports[j.id]; dup {
				old.Close()
			}
			transports[j.id] = j.tr
		case <-ctx.Done():
			for _, tr := range transports {
				tr.Close()
			}
			return nil, ctx.Err()
		}
	}
	return transports, nil
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.srv.Close()
}
