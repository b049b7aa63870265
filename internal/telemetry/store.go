// Package telemetry persists match history: a sqlite store for scores and
// per-step actions, and a compressed JSONL replay log for offline analysis.
package telemetry

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/blockswarm/internal/action"
)

const schema = `
CREATE TABLE IF NOT EXISTS matches (
	id         TEXT PRIMARY KEY,
	team       TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	ended_at   TIMESTAMP,
	steps      INTEGER NOT NULL DEFAULT 0,
	score      INTEGER NOT NULL DEFAULT 0,
	ranking    INTEGER
);

CREATE TABLE IF NOT EXISTS actions (
	match_id    TEXT NOT NULL REFERENCES matches(id),
	step        INTEGER NOT NULL,
	agent       TEXT NOT NULL,
	kind        TEXT NOT NULL,
	params      TEXT NOT NULL,
	explanation TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_actions_match_step ON actions(match_id, step);
`

// Store records matches into sqlite.
type Store struct {
	db      *sqlx.DB
	matchID string
}

// Open opens or creates the database and starts a new match record.
func Open(path, team string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate telemetry db: %w", err)
	}

	s := &Store{db: db, matchID: uuid.NewString()}
	_, err = db.Exec(
		`INSERT INTO matches (id, team, started_at) VALUES (?, ?, ?)`,
		s.matchID, team, time.Now().UTC(),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("record match start: %w", err)
	}
	return s, nil
}

// MatchID returns this match's identifier.
func (s *Store) MatchID() string { return s.matchID }

// RecordAction stores one agent's planned action.
func (s *Store) RecordAction(step int, agentID string, act action.Action, explanation string) {
	_, err := s.db.Exec(
		`INSERT INTO actions (match_id, step, agent, kind, params, explanation)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.matchID, step, agentID, act.Kind.String(), encodeParams(act), explanation,
	)
	_ = err // telemetry must never stall the step loop
}

// Finish closes out the match record with the final standing.
func (s *Store) Finish(steps, score, ranking int) error {
	_, err := s.db.Exec(
		`UPDATE matches SET ended_at = ?, steps = ?, score = ?, ranking = ? WHERE id = ?`,
		time.Now().UTC(), steps, score, ranking, s.matchID,
	)
	if err != nil {
		return fmt.Errorf("record match end: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

func encodeParams(act action.Action) string {
	var parts []string
	switch act.Kind {
	case action.Move:
		for _, d := range act.Directions {
			parts = append(parts, d.String())
		}
	case action.Rotate:
		parts = append(parts, act.Rotation.String())
	case action.Attach, action.Detach, action.Request:
		parts = append(parts, act.Direction.String())
	case action.Connect:
		parts = append(parts, act.Peer, act.Target.String())
	case action.Disconnect:
		parts = append(parts, act.Target.String(), act.Target2.String())
	case action.Adopt, action.Submit:
		parts = append(parts, act.Name)
	case action.Clear:
		parts = append(parts, act.Target.String())
	}
	return strings.Join(parts, " ")
}
