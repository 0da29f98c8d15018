package sessionstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/tonimelisma/chunkupload/internal/uploadmodel"
)

// sessionRow is the JSON-serializable form of uploadmodel.Session; the set
// of uploaded chunk indices round-trips as a sorted slice.
type sessionRow struct {
	ServerUploadID string                     `json:"serverUploadId"`
	FileID         string                     `json:"fileId"`
	SourceRef      string                     `json:"sourceRef"`
	Descriptor     uploadmodel.FileDescriptor `json:"descriptor"`
	TotalChunks    int                        `json:"totalChunks"`
	ChunkSize      int64                      `json:"chunkSize"`
	UploadedChunks []int                      `json:"uploadedChunks"`
	UploadedBytes  int64                      `json:"uploadedBytes"`
	FileHash       string                     `json:"fileHash"`
	Status         uploadmodel.Status         `json:"status"`
	CreatedAt      time.Time                  `json:"createdAt"`
}

func toRow(s uploadmodel.Session) sessionRow {
	indices := make([]int, 0, len(s.UploadedChunks))
	for i := range s.UploadedChunks {
		indices = append(indices, i)
	}

	slices.Sort(indices)

	return sessionRow{
		ServerUploadID: s.ServerUploadID,
		FileID:         s.FileID,
		SourceRef:      s.SourceRef,
		Descriptor:     s.Descriptor,
		TotalChunks:    s.TotalChunks,
		ChunkSize:      s.ChunkSize,
		UploadedChunks: indices,
		UploadedBytes:  s.UploadedBytes,
		FileHash:       s.FileHash,
		Status:         s.Status,
		CreatedAt:      s.CreatedAt,
	}
}

func fromRow(r sessionRow) uploadmodel.Session {
	set := make(map[int]struct{}, len(r.UploadedChunks))
	for _, i := range r.UploadedChunks {
		set[i] = struct{}{}
	}

	return uploadmodel.Session{
		ServerUploadID: r.ServerUploadID,
		FileID:         r.FileID,
		SourceRef:      r.SourceRef,
		Descriptor:     r.Descriptor,
		TotalChunks:    r.TotalChunks,
		ChunkSize:      r.ChunkSize,
		UploadedChunks: set,
		UploadedBytes:  r.UploadedBytes,
		FileHash:       r.FileHash,
		Status:         r.Status,
		CreatedAt:      r.CreatedAt,
	}
}

// SaveAll schedules a full-snapshot replace of the sessions table. Calls
// within the debounce window collapse into one write of the
// latest-supplied map (last value wins).
func (s *Store) SaveAll(sessions map[string]uploadmodel.Session) {
	rows := make(map[string]sessionRow, len(sessions))
	for id, sess := range sessions {
		rows[id] = toRow(sess)
	}

	s.mu.Lock()
	s.pendingSessions = rows
	s.mu.Unlock()

	s.sessionsTrigger.Fire()
}

// flushSessions is the debounce trigger callback: it writes whatever
// snapshot is currently pending. Errors are logged and swallowed — there
// is no caller left to return them to.
func (s *Store) flushSessions() {
	s.mu.Lock()
	rows := s.pendingSessions
	s.mu.Unlock()

	if rows == nil {
		return
	}

	if err := s.writeSessions(rows); err != nil {
		s.logger.Error("sessionstore: debounced session write failed", slog.String("error", err.Error()))
	}
}

func (s *Store) writeSessions(rows map[string]sessionRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sessionstore: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if _, err := tx.Exec("DELETE FROM sessions"); err != nil {
		return fmt.Errorf("sessionstore: clear sessions: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO sessions (id, data, created_at) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("sessionstore: prepare insert: %w", err)
	}
	defer stmt.Close()

	for id, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("sessionstore: encoding session %s: %w", id, err)
		}

		if _, err := stmt.Exec(id, string(data), row.CreatedAt.Unix()); err != nil {
			return fmt.Errorf("sessionstore: inserting session %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// LoadAll reads every persisted session, synchronously. Sessions older
// than the configured expiry are dropped and the cleaned map is written
// back before returning (spec.md §4.4 "Expiry").
func (s *Store) LoadAll() (map[string]uploadmodel.Session, error) {
	all, err := s.readSessions()
	if err != nil {
		return nil, err
	}

	now := s.now()
	fresh := make(map[string]sessionRow, len(all))
	dropped := false

	for id, row := range all {
		if now.Sub(row.CreatedAt) > s.expiry {
			dropped = true
			continue
		}

		fresh[id] = row
	}

	if dropped {
		if err := s.writeSessions(fresh); err != nil {
			s.logger.Error("sessionstore: expiry cleanup write failed", slog.String("error", err.Error()))
		}
	}

	result := make(map[string]uploadmodel.Session, len(fresh))
	for id, row := range fresh {
		result[id] = fromRow(row)
	}

	return result, nil
}

func (s *Store) readSessions() (map[string]sessionRow, error) {
	rows, err := s.db.Query("SELECT id, data FROM sessions")
	if err != nil {
		return nil, fmt.Errorf("sessionstore: query sessions: %w", err)
	}
	defer rows.Close()

	result := make(map[string]sessionRow)

	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("sessionstore: scanning session: %w", err)
		}

		var row sessionRow
		if err := json.Unmarshal([]byte(data), &row); err != nil {
			return nil, fmt.Errorf("sessionstore: decoding session %s: %w", id, err)
		}

		result[id] = row
	}

	return result, rows.Err()
}

// ClearSessions deletes every persisted session immediately, bypassing the
// debounce window.
func (s *Store) ClearSessions() error {
	s.mu.Lock()
	s.pendingSessions = map[string]sessionRow{}
	s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM sessions")
	if err != nil {
		return fmt.Errorf("sessionstore: clear sessions: %w", err)
	}

	return nil
}
