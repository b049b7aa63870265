package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/blockswarm/internal/action"
)

// ReplayEvent is one line of the replay log.
type ReplayEvent struct {
	Step        int    `json:"step"`
	Agent       string `json:"agent"`
	Action      string `json:"action"`
	Params      string `json:"params,omitempty"`
	Explanation string `json:"explanation,omitempty"`
}

// ReplayWriter appends zstd-compressed JSON lines, one file per match.
// Safe for the parallel planning phase.
type ReplayWriter struct {
	mu   sync.Mutex
	file *os.File
	zw   *zstd.Encoder
	enc  *json.Encoder
}

// NewReplayWriter creates the replay file for one match.
func NewReplayWriter(dir, matchID string) (*ReplayWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create replay dir: %w", err)
	}
	path := filepath.Join(dir, matchID+".jsonl.zst")
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create replay file: %w", err)
	}
	zw, err := zstd.NewWriter(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("init zstd writer: %w", err)
	}
	return &ReplayWriter{file: file, zw: zw, enc: json.NewEncoder(zw)}, nil
}

// RecordAction appends one event.
func (w *ReplayWriter) RecordAction(step int, agentID string, act action.Action, explanation string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.enc.Encode(ReplayEvent{
		Step:        step,
		Agent:       agentID,
		Action:      act.Kind.String(),
		Params:      encodeParams(act),
		Explanation: explanation,
	})
}

// Close flushes and closes the log.
func (w *ReplayWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.zw.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close zstd writer: %w", err)
	}
	return w.file.Close()
}

// Tee fans one action stream out to several recorders.
type Tee []interface {
	RecordAction(step int, agentID string, act action.Action, explanation string)
}

// RecordAction forwards to every recorder.
func (t Tee) RecordAction(step int, agentID string, act action.Action, explanation string) {
	for _, r := range t {
		r.RecordAction(step, agentID, act, explanation)
	}
}
