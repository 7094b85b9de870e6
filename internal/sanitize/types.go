package sanitize

import (
	"image"

	"github.com/raaihank/pixel-sentinel/internal/geom"
	"github.com/raaihank/pixel-sentinel/internal/redact"
)

// Stage is a step of one sanitization run
type Stage int

const (
	StageExtract Stage = iota
	StageDetect
	StageLocalize
	StageRedact
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageExtract:
		return "extract"
	case StageDetect:
		return "detect"
	case StageLocalize:
		return "localize"
	case StageRedact:
		return "redact"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// Reasons explain why a run ended where it did
const (
	ReasonOCRUnavailable  = "ocr_unavailable"
	ReasonOCRFailed       = "ocr_failed"
	ReasonEmptyTranscript = "empty_transcript"
	ReasonNoFindings      = "no_findings"
	ReasonTokenizeFailed  = "tokenize_failed"
	ReasonNotLocalized    = "not_localized"
	ReasonRedacted        = "redacted"
)

// Options holds redaction policy
type Options struct {
	// Padding in pixels added to every side of a located box
	Padding int
	// BlurKernel is the Gaussian kernel size; even sizes round up
	BlurKernel int
	// PixelBlock is the mosaic cell size
	PixelBlock int
}

// DefaultOptions returns the default redaction policy
func DefaultOptions() Options {
	return Options{
		Padding:    5,
		BlurKernel: 25,
		PixelBlock: 10,
	}
}

// Strength returns the size parameter used for method
func (o Options) Strength(method redact.Method) int {
	if method == redact.MethodPixelate {
		return o.PixelBlock
	}
	return o.BlurKernel
}

// Outcome is the result of one sanitization run.
//
// Scanned is false when OCR never produced text to scan; the image is then the
// untouched input and says nothing about what the image contains. Scanned with
// empty Categories means the image was read and nothing matched.
type Outcome struct {
	Image      image.Image
	Categories []string
	Scanned    bool
	Reason     string
	// Findings is the total number of matched substrings across categories
	Findings int
	// Regions are the clamped rectangles that were redacted, in order
	Regions []geom.Box
	Method  redact.Method
}

// Redacted reports whether any pixel was changed
func (o *Outcome) Redacted() bool {
	return len(o.Regions) > 0
}
