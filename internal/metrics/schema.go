package metrics

import (
	"database/sql"

	"codeberg.org/mutker/cpubench/internal/errors"
	"codeberg.org/mutker/cpubench/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS samples (
	       id              INTEGER PRIMARY KEY AUTOINCREMENT,
	       timestamp       INTEGER NOT NULL,
	       cpu_percent     REAL NOT NULL CHECK (cpu_percent BETWEEN 0 AND 100),
	       cpu_freq_mhz    REAL NOT NULL CHECK (cpu_freq_mhz >= 0),
	       mem_percent     REAL NOT NULL CHECK (mem_percent BETWEEN 0 AND 100),
	       mem_used_gb     REAL NOT NULL,
	       mem_total_gb    REAL NOT NULL,
	       temperature_c   REAL
	   );
	   CREATE INDEX IF NOT EXISTS samples_timestamp ON samples (timestamp);
	   CREATE TABLE IF NOT EXISTS sessions (
	       test_id                 TEXT PRIMARY KEY,
	       kind                    TEXT NOT NULL,
	       status                  TEXT NOT NULL CHECK (status IN ('completed', 'failed')),
	       started_at              INTEGER NOT NULL,
	       finished_at             INTEGER NOT NULL,
	       execution_time_seconds  REAL NOT NULL,
	       throughput              REAL NOT NULL,
	       throughput_unit         TEXT NOT NULL,
	       cpu_cores_used          INTEGER NOT NULL,
	       sample_count            INTEGER NOT NULL,
	       avg_cpu_percent         REAL NOT NULL,
	       peak_cpu_percent        REAL NOT NULL,
	       peak_mem_percent        REAL NOT NULL,
	       peak_temperature        REAL,
	       error                   TEXT NOT NULL DEFAULT ''
	   );`

	insertSampleSQL = `
    INSERT INTO samples (
        timestamp,
        cpu_percent, cpu_freq_mhz,
        mem_percent, mem_used_gb, mem_total_gb,
        temperature_c
    ) VALUES (?, ?, ?, ?, ?, ?, ?)`

	insertSessionSQL = `
    INSERT OR REPLACE INTO sessions (
        test_id, kind, status,
        started_at, finished_at,
        execution_time_seconds, throughput, throughput_unit, cpu_cores_used,
        sample_count, avg_cpu_percent,
        peak_cpu_percent, peak_mem_percent, peak_temperature,
        error
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the current schema version, 0 for an empty database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}
