package batch

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/raaihank/pixel-sentinel/internal/redact"
)

// Item is one manifest row. Method and Output are optional; relative paths
// resolve against the manifest's directory.
type Item struct {
	Path   string `csv:"path" parquet:"path" json:"path"`
	Method string `csv:"method" parquet:"method" json:"method,omitempty"`
	Output string `csv:"output" parquet:"output" json:"output,omitempty"`
}

// ReportRow is one line of the parquet run report
type ReportRow struct {
	Path         string `parquet:"path" json:"path"`
	Output       string `parquet:"output" json:"output"`
	ImageSHA256  string `parquet:"image_sha256" json:"image_sha256"`
	Method       string `parquet:"method" json:"method"`
	Scanned      bool   `parquet:"scanned" json:"scanned"`
	Reason       string `parquet:"reason" json:"reason"`
	Categories   string `parquet:"categories" json:"categories"`
	Findings     int64  `parquet:"findings" json:"findings"`
	Regions      int64  `parquet:"regions" json:"regions"`
	CacheHit     bool   `parquet:"cache_hit" json:"cache_hit"`
	Error        string `parquet:"error" json:"error,omitempty"`
	ProcessingMS int64  `parquet:"processing_ms" json:"processing_ms"`
}

// Result summarizes a batch run
type Result struct {
	Total     int64         `json:"total"`
	Redacted  int64         `json:"redacted"`
	Unscanned int64         `json:"unscanned"`
	Failed    int64         `json:"failed"`
	Duration  time.Duration `json:"duration"`
	Report    string        `json:"report,omitempty"`
	Rows      []ReportRow   `json:"rows"`
}

// Config contains batch runner configuration
type Config struct {
	Workers       int           // 4
	OutputDir     string        // ./sanitized
	ReportName    string        // report.parquet, empty disables the report
	DefaultMethod redact.Method // blur
}

// FileFormat represents supported manifest formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
	FormatDir     FileFormat = "dir"
)

// DetectFileFormat detects the manifest format from its extension
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV
	}
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsImagePath reports whether name has an image extension the decoder handles
func IsImagePath(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}
