package sessionstore

import "fmt"

// SaveSourceRefs persists the id->sourceRef map as a full-snapshot
// replace, synchronously (spec.md §4.4, §6 "uploadFileUriMap").
func (s *Store) SaveSourceRefs(refs map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sessionstore: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if _, err := tx.Exec("DELETE FROM source_refs"); err != nil {
		return fmt.Errorf("sessionstore: clear source refs: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO source_refs (id, source_ref) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("sessionstore: prepare insert: %w", err)
	}
	defer stmt.Close()

	for id, ref := range refs {
		if _, err := stmt.Exec(id, ref); err != nil {
			return fmt.Errorf("sessionstore: inserting source ref %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// LoadSourceRefs reads the full id->sourceRef map.
func (s *Store) LoadSourceRefs() (map[string]string, error) {
	rows, err := s.db.Query("SELECT id, source_ref FROM source_refs")
	if err != nil {
		return nil, fmt.Errorf("sessionstore: query source refs: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)

	for rows.Next() {
		var id, ref string
		if err := rows.Scan(&id, &ref); err != nil {
			return nil, fmt.Errorf("sessionstore: scanning source ref: %w", err)
		}

		result[id] = ref
	}

	return result, rows.Err()
}

// ClearSourceRefs removes every persisted source ref.
func (s *Store) ClearSourceRefs() error {
	if _, err := s.db.Exec("DELETE FROM source_refs"); err != nil {
		return fmt.Errorf("sessionstore: clearing source refs: %w", err)
	}

	return nil
}
