package migrations

import "gorm.io/gorm"

// Migration002ReportJSON stores the ISO summary alongside each record.
type Migration002ReportJSON struct{}

func (m *Migration002ReportJSON) Version() string {
	return "002_report_json"
}

func (m *Migration002ReportJSON) Description() string {
	return "Add ISO report column to scan history"
}

func (m *Migration002ReportJSON) Up(db *gorm.DB) error {
	return db.Exec(`ALTER TABLE scan_records ADD COLUMN report JSON`).Error
}

func (m *Migration002ReportJSON) Down(db *gorm.DB) error {
	return db.Exec(`ALTER TABLE scan_records DROP COLUMN report`).Error
}
