// Package protocol implements the JSON wire protocol spoken between agents
// and the match server: authentication, simulation start, the per-step
// request-action/action exchange, and simulation end. Message schemas live
// under schemas/ and are enforced in tests.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Message types.
const (
	TypeAuthRequest   = "auth-request"
	TypeAuthResponse  = "auth-response"
	TypeSimStart      = "sim-start"
	TypeRequestAction = "request-action"
	TypeAction        = "action"
	TypeSimEnd        = "sim-end"
	TypeBye           = "bye"
)

// Message is the wire envelope. Content is decoded lazily by type.
type Message struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

// NewMessage wraps typed content into an envelope.
func NewMessage(msgType string, content any) (Message, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s content: %w", msgType, err)
	}
	return Message{Type: msgType, Content: raw}, nil
}

// Decode unmarshals the envelope content into the given typed struct.
func (m Message) Decode(into any) error {
	if err := json.Unmarshal(m.Content, into); err != nil {
		return fmt.Errorf("decode %s content: %w", m.Type, err)
	}
	return nil
}

// AuthRequest is the agent's opening credential message.
type AuthRequest struct {
	User     string `json:"user"`
	Password string `json:"pw"`
}

// AuthResponse reports whether authentication succeeded.
type AuthResponse struct {
	Result string `json:"result"`
}

// OK reports a successful authentication.
func (a AuthResponse) OK() bool { return a.Result == "ok" }

// Position is an [x, y] pair as encoded on the wire.
type Position [2]int

// X returns the horizontal component.
func (p Position) X() int { return p[0] }

// Y returns the vertical component.
func (p Position) Y() int { return p[1] }

// WireRole is one role catalogue entry in the sim-start announcement.
type WireRole struct {
	Name    string   `json:"name"`
	Vision  int      `json:"vision"`
	Actions []string `json:"actions"`
	Speed   []int    `json:"speed"`
	Clear   struct {
		Chance      float64 `json:"chance"`
		MaxDistance int     `json:"maxDistance"`
	} `json:"clear"`
}

// SimStart announces the match constants to one agent.
type SimStart struct {
	Time    int `json:"time"`
	Percept struct {
		Name     string     `json:"name"`
		Team     string     `json:"team"`
		TeamSize int        `json:"teamSize"`
		Steps    int        `json:"steps"`
		Role     string     `json:"role"`
		Roles    []WireRole `json:"roles"`
	} `json:"percept"`
}

// WireThing is one visible entity, relative to the perceiving agent.
type WireThing struct {
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Type    string `json:"type"`
	Details string `json:"details"`
}

// WireTaskRequirement is one block of a task shape.
type WireTaskRequirement struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Type string `json:"type"`
}

// WireTask is one task board entry.
type WireTask struct {
	Name         string                `json:"name"`
	Deadline     int                   `json:"deadline"`
	Reward       int                   `json:"reward"`
	Requirements []WireTaskRequirement `json:"requirements"`
}

// WireNormRequirement is one clause of a norm.
type WireNormRequirement struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// WireNorm is one norm board entry.
type WireNorm struct {
	Name         string                `json:"name"`
	Start        int                   `json:"start"`
	Until        int                   `json:"until"`
	Punishment   int                   `json:"punishment"`
	Requirements []WireNormRequirement `json:"requirements"`
}

// Percept is the per-step observation sent with a request-action.
type Percept struct {
	LastAction       string      `json:"lastAction"`
	LastActionResult string      `json:"lastActionResult"`
	LastActionParams []string    `json:"lastActionParams"`
	Score            int         `json:"score"`
	Energy           int         `json:"energy"`
	Deactivated      bool        `json:"deactivated"`
	Role             string      `json:"role"`
	Things           []WireThing `json:"things"`
	Tasks            []WireTask  `json:"tasks"`
	Norms            []WireNorm  `json:"norms"`
	Attached         []Position  `json:"attached"`
	GoalZones        []Position  `json:"goalZones"`
	RoleZones        []Position  `json:"roleZones"`
}

// RequestAction asks one agent for its next action.
type RequestAction struct {
	ID       int     `json:"id"`
	Time     int     `json:"time"`
	Deadline int     `json:"deadline"`
	Step     int     `json:"step"`
	Percept  Percept `json:"percept"`
}

// ActionMessage is the agent's answer to a request-action.
type ActionMessage struct {
	ID     int      `json:"id"`
	Action string   `json:"type"`
	Params []string `json:"p,omitempty"`
}

// SimEnd reports the final placement to one agent.
type SimEnd struct {
	Ranking int `json:"ranking"`
	Score   int `json:"score"`
}
