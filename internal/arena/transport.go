package arena

import (
	"fmt"
	"sync"

	"github.com/talgya/blockswarm/internal/protocol"
)

// Pipe is an in-process protocol.Transport: what one end sends, the other
// receives. Used by tests and by in-process matches where agents and arena
// share the binary.
type Pipe struct {
	in     chan protocol.Message
	out    chan protocol.Message
	closed chan struct{}
	once   sync.Once
}

// NewPipe returns the two connected endpoints.
func NewPipe() (server, client *Pipe) {
	a := make(chan protocol.Message, 8)
	b := make(chan protocol.Message, 8)
	closed := make(chan struct{})
	return &Pipe{in: a, out: b, closed: closed}, &Pipe{in: b, out: a, closed: closed}
}

// Send delivers a message to the other end.
func (p *Pipe) Send(msg protocol.Message) error {
	select {
	case p.out <- msg:
		return nil
	case <-p.closed:
		return fmt.Errorf("pipe: send on closed transport")
	}
}

// Receive blocks for the next message from the other end.
func (p *Pipe) Receive() (protocol.Message, error) {
	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.closed:
		return protocol.Message{}, fmt.Errorf("pipe: receive on closed transport")
	}
}

// Close shuts both ends down.
func (p *Pipe) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}
