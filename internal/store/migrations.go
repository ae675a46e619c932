package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Per-module configuration set through the API. NULL columns keep the
		// value from the configuration file.
		`CREATE TABLE IF NOT EXISTS module_overrides (
			module TEXT PRIMARY KEY CHECK(module IN ('detection', 'recognition', 'translation')),
			enabled INTEGER,
			priority INTEGER CHECK(priority IS NULL OR priority >= 1),
			confidence_threshold REAL CHECK(confidence_threshold IS NULL OR (confidence_threshold >= 0 AND confidence_threshold <= 1)),
			preprocessing_params TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Recognized words, newest last.
		`CREATE TABLE IF NOT EXISTS recognitions (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			word TEXT NOT NULL,
			display_name TEXT NOT NULL,
			confidence REAL NOT NULL,
			module TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_recognitions_session_id ON recognitions(session_id, created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
