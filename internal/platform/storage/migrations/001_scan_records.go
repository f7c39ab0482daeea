// Package migrations holds the versioned schema of the history database.
package migrations

import "gorm.io/gorm"

// Migration001ScanRecords creates the scan history table.
type Migration001ScanRecords struct{}

func (m *Migration001ScanRecords) Version() string {
	return "001_scan_records"
}

func (m *Migration001ScanRecords) Description() string {
	return "Create scan history table"
}

func (m *Migration001ScanRecords) Up(db *gorm.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scan_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id VARCHAR(64) NOT NULL UNIQUE,
			scanned_at DATETIME NOT NULL,
			payload TEXT NOT NULL,
			symbology VARCHAR(32) NOT NULL,
			grade VARCHAR(1) NOT NULL,
			defect VARCHAR(16) NOT NULL,
			score REAL NOT NULL DEFAULT 0,
			sharpness REAL NOT NULL DEFAULT 0,
			contrast REAL NOT NULL DEFAULT 0,
			modulation REAL NOT NULL DEFAULT 0,
			box JSON,
			snapshot_path TEXT,
			report_path TEXT,
			order_id VARCHAR(64),
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_records_scanned_at ON scan_records(scanned_at)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_records_payload ON scan_records(payload)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_records_grade ON scan_records(grade)`,
	}
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			return err
		}
	}
	return nil
}

func (m *Migration001ScanRecords) Down(db *gorm.DB) error {
	return db.Exec(`DROP TABLE IF EXISTS scan_records`).Error
}
