package report

import (
	"encoding/csv"
	"io"
	"time"

	"proscan-server-go/internal/domain/stats"
)

// CSVHeader is the first line of the tabular export.
var CSVHeader = []string{"Time", "Barcode", "Type", "Grade", "Defect"}

// WriteCSV writes rows in the order given.
func WriteCSV(w io.Writer, rows []stats.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Time.Local().Format(time.DateTime),
			r.Payload,
			r.Symbology,
			string(r.Grade),
			string(r.Defect),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
