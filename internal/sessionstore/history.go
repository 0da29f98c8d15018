package sessionstore

import (
	"fmt"

	"github.com/tonimelisma/chunkupload/internal/uploadmodel"
)

// AppendHistory records a completed upload (spec.md §6 "uploadHistory").
func (s *Store) AppendHistory(entry uploadmodel.HistoryEntry) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO history (id, name, size, mime_type, completed_at) VALUES (?, ?, ?, ?, ?)",
		entry.ID, entry.Name, entry.Size, entry.MimeType, entry.CompletedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("sessionstore: appending history entry %s: %w", entry.ID, err)
	}

	return nil
}

// LoadHistory returns every recorded entry, newest first.
func (s *Store) LoadHistory() ([]uploadmodel.HistoryEntry, error) {
	rows, err := s.db.Query("SELECT id, name, size, mime_type, completed_at FROM history ORDER BY completed_at DESC")
	if err != nil {
		return nil, fmt.Errorf("sessionstore: query history: %w", err)
	}
	defer rows.Close()

	var result []uploadmodel.HistoryEntry

	for rows.Next() {
		var (
			entry       uploadmodel.HistoryEntry
			completedAt int64
		)

		if err := rows.Scan(&entry.ID, &entry.Name, &entry.Size, &entry.MimeType, &completedAt); err != nil {
			return nil, fmt.Errorf("sessionstore: scanning history entry: %w", err)
		}

		entry.CompletedAt = unixToTime(completedAt)
		result = append(result, entry)
	}

	return result, rows.Err()
}

// PruneHistoryBefore deletes history entries completed before cutoff,
// backing the "history prune" CLI command.
func (s *Store) PruneHistoryBefore(cutoff int64) error {
	if _, err := s.db.Exec("DELETE FROM history WHERE completed_at < ?", cutoff); err != nil {
		return fmt.Errorf("sessionstore: pruning history: %w", err)
	}

	return nil
}

// ClearHistory removes every recorded history entry.
func (s *Store) ClearHistory() error {
	if _, err := s.db.Exec("DELETE FROM history"); err != nil {
		return fmt.Errorf("sessionstore: clearing history: %w", err)
	}

	return nil
}
