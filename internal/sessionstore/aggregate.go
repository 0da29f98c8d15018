package sessionstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tonimelisma/chunkupload/internal/uploadmodel"
)

// aggregateSnapshot wraps the persisted view with its write timestamp
// (spec.md §6 "uploadState ... with timestamp").
type aggregateSnapshot struct {
	State     uploadmodel.AggregateState `json:"state"`
	Timestamp int64                      `json:"timestamp"`
}

// SaveAggregate persists AggregateState minus completed/idle items,
// synchronously (spec.md §4.4).
func (s *Store) SaveAggregate(state uploadmodel.AggregateState) error {
	filtered := uploadmodel.AggregateState{Items: make([]uploadmodel.UploadItem, 0, len(state.Items))}

	for _, item := range state.Items {
		if item.Status == uploadmodel.StatusCompleted || item.Status == uploadmodel.StatusIdle {
			continue
		}

		filtered.Items = append(filtered.Items, item)
	}

	filtered.Recompute()

	snapshot := aggregateSnapshot{State: filtered, Timestamp: s.now().Unix()}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("sessionstore: encoding aggregate state: %w", err)
	}

	_, err = s.db.Exec(
		"INSERT INTO aggregate_state (id, data, updated_at) VALUES (1, ?, ?) "+
			"ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at",
		string(data), snapshot.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("sessionstore: writing aggregate state: %w", err)
	}

	return nil
}

// LoadAggregate reads the last persisted AggregateState. Returns a zero
// value if nothing has been saved yet.
func (s *Store) LoadAggregate() (uploadmodel.AggregateState, error) {
	var data string

	err := s.db.QueryRow("SELECT data FROM aggregate_state WHERE id = 1").Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return uploadmodel.AggregateState{}, nil
	}

	if err != nil {
		return uploadmodel.AggregateState{}, fmt.Errorf("sessionstore: reading aggregate state: %w", err)
	}

	var snapshot aggregateSnapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return uploadmodel.AggregateState{}, fmt.Errorf("sessionstore: decoding aggregate state: %w", err)
	}

	return snapshot.State, nil
}

// ClearAggregate removes the persisted aggregate snapshot.
func (s *Store) ClearAggregate() error {
	if _, err := s.db.Exec("DELETE FROM aggregate_state"); err != nil {
		return fmt.Errorf("sessionstore: clearing aggregate state: %w", err)
	}

	return nil
}
