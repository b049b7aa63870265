package roles_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/blockswarm/internal/roles"
)

func actionSet(names ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

func testCatalogue() []roles.Role {
	return []roles.Role{
		{
			Name:             "default",
			Vision:           5,
			Actions:          actionSet("move", "rotate", "adopt"),
			Speeds:           []int{1, 1},
			ClearChance:      0.3,
			ClearMaxDistance: 1,
		},
		{
			Name:             "worker",
			Vision:           5,
			Actions:          actionSet("move", "rotate", "adopt", "attach", "detach", "request", "connect", "submit", "clear"),
			Speeds:           []int{3, 2, 1},
			ClearChance:      0.3,
			ClearMaxDistance: 1,
		},
		{
			Name:    "digger",
			Vision:  5,
			Actions: actionSet("move", "rotate", "adopt", "clear"),
			Speeds:  []int{2, 1},
		},
	}
}

func TestRole_Capabilities(t *testing.T) {
	book := roles.NewBook(testCatalogue())

	worker, ok := book.Get("worker")
	require.True(t, ok)
	assert.True(t, worker.CanCoordinate())
	assert.True(t, worker.CanProvide())
	assert.True(t, worker.CanProvideAndSubmit())

	digger, ok := book.Get("digger")
	require.True(t, ok)
	assert.False(t, digger.CanCoordinate())
	assert.False(t, digger.CanProvide())

	// Batched moves cap out at two regardless of the announced speed.
	assert.Equal(t, 2, worker.Speed(0))
	assert.Equal(t, 2, worker.Speed(1))
	assert.Equal(t, 1, worker.Speed(2))
	assert.Equal(t, 1, worker.Speed(9))
}

func TestBook_ReservationQueue(t *testing.T) {
	book := roles.NewBook(testCatalogue())
	book.SetWorn("agent1", "default")
	book.Reserve("agent1", "digger", "worker")

	next, ok := book.NextReserved("agent1")
	require.True(t, ok)
	assert.Equal(t, "digger", next.Name)

	// Adopting the head of the queue consumes it.
	book.SetWorn("agent1", "digger")
	assert.Equal(t, []string{"worker"}, book.Reserved("agent1"))

	// Adopting something else leaves the queue alone.
	book.SetWorn("agent1", "default")
	assert.Equal(t, []string{"worker"}, book.Reserved("agent1"))

	book.Release("agent1")
	next, ok = book.NextReserved("agent1")
	require.True(t, ok)
	assert.Equal(t, "default", next.Name)
}

func TestBook_AllowedUnderRegulation(t *testing.T) {
	book := roles.NewBook(testCatalogue())
	book.SetWorn("agent1", "worker")
	book.SetWorn("agent2", "worker")
	book.Reserve("agent3", "worker")

	regs := []roles.Regulation{{Role: "worker", Quantity: 3}}
	assert.Equal(t, []string{"digger"}, book.Allowed([]string{"worker", "digger"}, regs))

	// Under the cap both candidates pass.
	regs[0].Quantity = 4
	assert.Equal(t, []string{"worker", "digger"}, book.Allowed([]string{"worker", "digger"}, regs))
}

func TestBook_Violators(t *testing.T) {
	book := roles.NewBook(testCatalogue())
	book.SetWorn("agent1", "worker")
	book.SetWorn("agent2", "worker")
	book.SetWorn("agent3", "digger")
	book.Reserve("agent4", "worker")

	reg := roles.Regulation{Role: "worker", Quantity: 1}
	assert.Equal(t, 2, book.ViolationCount(reg))

	violators := book.Violators(reg)
	assert.Len(t, violators, 2)
	assert.NotContains(t, violators, "agent3")

	assert.Empty(t, book.Violators(roles.Regulation{Role: "digger", Quantity: 1}))
}

func TestBook_Vision(t *testing.T) {
	book := roles.NewBook(testCatalogue())
	assert.Equal(t, 7, book.Vision("stranger", 7))
	book.SetWorn("agent1", "worker")
	assert.Equal(t, 5, book.Vision("agent1", 7))
}

func TestBook_InterTaskRole(t *testing.T) {
	book := roles.NewBook(testCatalogue())
	r, ok := book.InterTaskRole()
	require.True(t, ok)
	assert.Equal(t, "worker", r.Name)
}
