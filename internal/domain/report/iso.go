package report

import (
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"

	"proscan-server-go/internal/domain/scan"
	"proscan-server-go/internal/platform/errors"
)

const (
	ResultPass = "PASS"
	ResultFail = "FAIL"
)

// ISOReport is the ISO 15415-style summary for one code.
type ISOReport struct {
	Time       string  `json:"Time"`
	Barcode    string  `json:"Barcode"`
	Type       string  `json:"Type"`
	Grade      string  `json:"ISO_Grade"`
	Contrast   float64 `json:"Contrast"`
	Sharpness  float64 `json:"Sharpness"`
	Modulation float64 `json:"Modulation"`
	Width      int     `json:"Width"`
	Height     int     `json:"Height"`
	Result     string  `json:"Result"`
}

// BuildISOReport summarises ev. Contrast and sharpness keep two decimals,
// modulation four.
func BuildISOReport(ev scan.ScanEvent) ISOReport {
	c := ev.Code
	result := ResultFail
	if c.Passed() {
		result = ResultPass
	}
	return ISOReport{
		Time:       ev.Timestamp.Local().Format(time.DateTime),
		Barcode:    c.Payload,
		Type:       c.Symbology,
		Grade:      string(c.Grade),
		Contrast:   round(c.Metrics.Contrast, 2),
		Sharpness:  round(c.Metrics.Sharpness, 2),
		Modulation: round(c.Metrics.Modulation, 4),
		Width:      c.Box.Width,
		Height:     c.Box.Height,
		Result:     result,
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// ReportName is ISO15415_<payload>_<timestamp>.json.
func ReportName(ev scan.ScanEvent) string {
	return "ISO15415_" + SanitizeName(ev.Code.Payload) + "_" + stamp(ev.Timestamp) + ".json"
}

// ISOWriter writes reports into Dir.
type ISOWriter struct {
	Dir string
}

func NewISOWriter(dir string) *ISOWriter {
	return &ISOWriter{Dir: dir}
}

func (w *ISOWriter) Write(ev scan.ScanEvent) (string, error) {
	data, err := sonic.ConfigStd.MarshalIndent(BuildISOReport(ev), "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.KindReport, "report.iso", "encode report", err)
	}
	path := filepath.Join(w.Dir, ReportName(ev))
	err = writeAtomic(path, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
	if err != nil {
		return "", errors.Wrap(errors.KindReport, "report.iso", "write "+path, err)
	}
	return path, nil
}
