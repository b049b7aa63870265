package arena

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/blockswarm/internal/protocol"
)

func TestListener_AuthenticatesAndExchangesMessages(t *testing.T) {
	l, err := Listen(testLogger(), "127.0.0.1:0", "secret")
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type dialed struct {
		client *protocol.Client
		err    error
	}
	ch := make(chan dialed, 1)
	go func() {
		c, err := protocol.Dial(ctx, "ws://"+l.Addr(), "agent1", "secret")
		ch <- dialed{client: c, err: err}
	}()

	transports, err := l.WaitForAgents(ctx, 1)
	require.NoError(t, err)
	require.Contains(t, transports, "agent1")

	d := <-ch
	require.NoError(t, d.err)
	defer d.client.Close()

	out, err := protocol.NewMessage(protocol.TypeSimEnd, protocol.SimEnd{Ranking: 1, Score: 7})
	require.NoError(t, err)
	require.NoError(t, transports["agent1"].Send(out))

	in, err := d.client.Receive()
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeSimEnd, in.Type)
	var end protocol.SimEnd
	require.NoError(t, in.Decode(&end))
	assert.Equal(t, 7, end.Score)
}

func TestListener_RejectsWrongPassword(t *testing.T) {
	l, err := Listen(testLogger(), "127.0.0.1:0", "secret")
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = protocol.Dial(ctx, "ws://"+l.Addr(), "agent1", "wrong")
	assert.Error(t, err)
}

func TestListener_WaitForAgentsHonorsContext(t *testing.T) {
	l, err := Listen(testLogger(), "127.0.0.1:0", "")
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = l.WaitForAgents(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
