package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/talgya/blockswarm/internal/action"
	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	envelopeSchema := compile("envelope.schema.json")
	authSchema := compile("auth-request.schema.json")
	simStartSchema := compile("sim-start.schema.json")
	requestSchema := compile("request-action.schema.json")
	actionSchema := compile("action.schema.json")
	simEndSchema := compile("sim-end.schema.json")

	var auth any
	_ = json.Unmarshal([]byte(`{"user":"agent1","pw":"1"}`), &auth)
	validate(authSchema, auth)

	var start any
	_ = json.Unmarshal([]byte(`{
	  "time": 1700000000,
	  "percept": {
	    "name": "agent1",
	    "team": "A",
	    "teamSize": 15,
	    "steps": 750,
	    "role": "default",
	    "roles": [{
	      "name": "worker",
	      "vision": 5,
	      "actions": ["move","rotate","attach","detach","request","connect","submit","clear"],
	      "speed": [2, 1],
	      "clear": {"chance": 0.3, "maxDistance": 1}
	    }]
	  }
	}`), &start)
	validate(simStartSchema, start)

	var req any
	_ = json.Unmarshal([]byte(`{
	  "id": 12,
	  "time": 1700000001,
	  "deadline": 1700000005,
	  "step": 11,
	  "percept": {
	    "lastAction": "move",
	    "lastActionResult": "success",
	    "lastActionParams": ["n"],
	    "score": 40,
	    "energy": 97,
	    "deactivated": false,
	    "role": "worker",
	    "things": [
	      {"x": 0, "y": 0, "type": "entity", "details": "A"},
	      {"x": 1, "y": 2, "type": "dispenser", "details": "b0"},
	      {"x": -1, "y": 0, "type": "obstacle", "details": ""}
	    ],
	    "tasks": [{
	      "name": "task3",
	      "deadline": 120,
	      "reward": 20,
	      "requirements": [{"x": 0, "y": 1, "type": "b0"}]
	    }],
	    "norms": [{
	      "name": "n1",
	      "start": 50,
	      "until": 150,
	      "punishment": 5,
	      "requirements": [{"type": "block", "name": "any", "quantity": 1}]
	    }],
	    "attached": [[0, 1]],
	    "goalZones": [[2, 2], [2, 3]],
	    "roleZones": []
	  }
	}`), &req)
	validate(requestSchema, req)

	var end any
	_ = json.Unmarshal([]byte(`{"ranking":1,"score":160}`), &end)
	validate(simEndSchema, end)

	// Outgoing envelopes produced by the encoder must satisfy both the
	// envelope and the action schema.
	planned := []action.Action{
		action.NewSkip(),
		action.NewMove(grid.North, grid.North),
		action.NewRotate(grid.Clockwise),
		action.NewAttach(grid.East),
		action.NewRequest(grid.South),
		action.NewConnect("agent7", grid.Coordinate{X: 0, Y: 1}),
		action.NewAdopt("worker"),
		action.NewClear(grid.Coordinate{X: -1, Y: 2}),
		action.NewSubmit("task3"),
	}
	for _, act := range planned {
		msg, err := protocol.EncodeAction(7, act)
		if err != nil {
			t.Fatalf("encode %s: %v", act.Kind, err)
		}
		raw, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal %s: %v", act.Kind, err)
		}
		var envelope any
		_ = json.Unmarshal(raw, &envelope)
		validate(envelopeSchema, envelope)

		var content any
		_ = json.Unmarshal(msg.Content, &content)
		validate(actionSchema, content)
	}
}
