package audit

import (
	"strings"
	"time"
)

// Record is one audited sanitization. It never contains matched values,
// only which categories fired and how much of the image was touched.
type Record struct {
	ID          string    `json:"id"`
	ImageSHA256 string    `json:"image_sha256"`
	Source      string    `json:"source"`
	Method      string    `json:"method"`
	Scanned     bool      `json:"scanned"`
	Reason      string    `json:"reason"`
	Categories  []string  `json:"categories"`
	Findings    int       `json:"findings"`
	Regions     int       `json:"regions"`
	CreatedAt   time.Time `json:"created_at"`
}

// Stats summarizes the audit trail
type Stats struct {
	Total      int64            `json:"total"`
	Scanned    int64            `json:"scanned"`
	Unscanned  int64            `json:"unscanned"`
	Redacted   int64            `json:"redacted"`
	Categories map[string]int64 `json:"categories"`
}

// Config contains database configuration
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// row is the storage shape of a Record
type row struct {
	ID          string `db:"id"`
	ImageSHA256 string `db:"image_sha256"`
	Source      string `db:"source"`
	Method      string `db:"method"`
	Scanned     bool   `db:"scanned"`
	Reason      string `db:"reason"`
	Categories  string `db:"categories"`
	Findings    int    `db:"findings"`
	Regions     int    `db:"regions"`
	CreatedMS   int64  `db:"created_ms"`
}

func toRow(r *Record) row {
	return row{
		ID:          r.ID,
		ImageSHA256: r.ImageSHA256,
		Source:      r.Source,
		Method:      r.Method,
		Scanned:     r.Scanned,
		Reason:      r.Reason,
		Categories:  strings.Join(r.Categories, ","),
		Findings:    r.Findings,
		Regions:     r.Regions,
		CreatedMS:   r.CreatedAt.UnixMilli(),
	}
}

func (r row) record() *Record {
	rec := &Record{
		ID:          r.ID,
		ImageSHA256: r.ImageSHA256,
		Source:      r.Source,
		Method:      r.Method,
		Scanned:     r.Scanned,
		Reason:      r.Reason,
		Categories:  []string{},
		Findings:    r.Findings,
		Regions:     r.Regions,
		CreatedAt:   time.UnixMilli(r.CreatedMS).UTC(),
	}
	if r.Categories != "" {
		rec.Categories = strings.Split(r.Categories, ",")
	}
	return rec
}
