// Package action defines the primitive per-step actions an agent can submit.
package action

import (
	"strings"

	"github.com/talgya/blockswarm/internal/grid"
)

// Kind enumerates the action primitives.
type Kind uint8

const (
	Skip Kind = iota
	Move
	Rotate
	Attach
	Detach
	Request
	Connect
	Disconnect
	Adopt
	Clear
	Submit
	Survey
)

func (k Kind) String() string {
	switch k {
	case Move:
		return "move"
	case Rotate:
		return "rotate"
	case Attach:
		return "attach"
	case Detach:
		return "detach"
	case Request:
		return "request"
	case Connect:
		return "connect"
	case Disconnect:
		return "disconnect"
	case Adopt:
		return "adopt"
	case Clear:
		return "clear"
	case Submit:
		return "submit"
	case Survey:
		return "survey"
	default:
		return "skip"
	}
}

// ParseKind maps a wire action name back to its Kind.
func ParseKind(s string) Kind {
	switch strings.ToLower(s) {
	case "move":
		return Move
	case "rotate":
		return Rotate
	case "attach":
		return Attach
	case "detach":
		return Detach
	case "request":
		return Request
	case "connect":
		return Connect
	case "disconnect":
		return Disconnect
	case "adopt":
		return Adopt
	case "clear":
		return Clear
	case "submit":
		return Submit
	case "survey":
		return Survey
	default:
		return Skip
	}
}

// Action is one primitive with its parameters. Only the fields relevant to
// the Kind are meaningful.
type Action struct {
	Kind       Kind
	Directions []grid.Direction // Move
	Direction  grid.Direction   // Attach, Detach, Request
	Rotation   grid.Rotation    // Rotate
	Target     grid.Coordinate  // Clear and Connect relative coordinate, first Disconnect attachment
	Target2    grid.Coordinate  // second Disconnect attachment
	Peer       string           // Connect peer agent
	Name       string           // Adopt role name, Submit task name
}

func NewSkip() Action { return Action{Kind: Skip} }

func NewMove(dirs ...grid.Direction) Action { return Action{Kind: Move, Directions: dirs} }

func NewRotate(r grid.Rotation) Action { return Action{Kind: Rotate, Rotation: r} }

func NewAttach(d grid.Direction) Action { return Action{Kind: Attach, Direction: d} }

func NewDetach(d grid.Direction) Action { return Action{Kind: Detach, Direction: d} }

func NewRequest(d grid.Direction) Action { return Action{Kind: Request, Direction: d} }

func NewConnect(peer string, rel grid.Coordinate) Action {
	return Action{Kind: Connect, Peer: peer, Target: rel}
}

func NewDisconnect(a, b grid.Coordinate) Action {
	return Action{Kind: Disconnect, Target: a, Target2: b}
}

func NewAdopt(role string) Action { return Action{Kind: Adopt, Name: role} }

func NewClear(rel grid.Coordinate) Action { return Action{Kind: Clear, Target: rel} }

func NewSubmit(task string) Action { return Action{Kind: Submit, Name: task} }

func NewSurvey() Action { return Action{Kind: Survey} }
