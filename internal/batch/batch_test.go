package batch

import (
	"context"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/raaihank/pixel-sentinel/internal/geom"
	"github.com/raaihank/pixel-sentinel/internal/imageio"
	"github.com/raaihank/pixel-sentinel/internal/ocr"
	"github.com/raaihank/pixel-sentinel/internal/pii"
	"github.com/raaihank/pixel-sentinel/internal/redact"
	"github.com/raaihank/pixel-sentinel/internal/sanitize"
	"github.com/raaihank/pixel-sentinel/internal/service"
)

func writeImage(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 60, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 60; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 4), G: uint8((x + y) % 2 * 255), B: 30, A: 255})
		}
	}
	data, err := imageio.PNGBytes(img)
	if err != nil {
		t.Fatalf("PNGBytes: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func newProcessor() *service.Processor {
	engine := &ocr.Static{
		Text:   "contact admin@example.com",
		Tokens: []ocr.Token{{Text: "admin@example.com", Box: geom.Box{X: 10, Y: 5, Width: 30, Height: 8}}},
	}
	det := pii.NewWithRegistry(pii.DefaultRegistry(), zap.NewNop())
	return service.New(sanitize.New(det, engine, sanitize.DefaultOptions(), zap.NewNop()), zap.NewNop())
}

func readReport(t *testing.T, path string) []ReportRow {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open report: %v", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	var rows []ReportRow
	for {
		var row ReportRow
		err := reader.Read(&row)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read report: %v", err)
		}
		rows = append(rows, row)
	}
	return rows
}

func TestDetectFileFormat(t *testing.T) {
	tests := map[string]FileFormat{
		"items.csv":        FormatCSV,
		"items.PARQUET":    FormatParquet,
		"items.json":       FormatJSON,
		"items.jsonl":      FormatJSON,
		"items.txt":        FormatCSV,
		"dir/items.ndjson": FormatJSON,
	}
	for name, want := range tests {
		if got := DetectFileFormat(name); got != want {
			t.Errorf("DetectFileFormat(%q) = %s, want %s", name, got, want)
		}
	}
}

func TestReadManifest_CSV(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "manifest.csv")
	content := "output,path,method\n,a.png,pixelate\nout/b.png,/abs/b.png,\n,,blur\n"
	if err := os.WriteFile(manifest, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	items, err := ReadManifest(manifest)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d: %+v", len(items), items)
	}
	if items[0].Path != filepath.Join(dir, "a.png") || items[0].Method != "pixelate" {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].Path != "/abs/b.png" || items[1].Output != filepath.Join(dir, "out/b.png") {
		t.Errorf("items[1] = %+v", items[1])
	}
}

func TestReadManifest_CSVWithoutPath(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "m.csv")
	if err := os.WriteFile(manifest, []byte("file,method\na.png,blur\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadManifest(manifest); err == nil {
		t.Error("expected error for manifest without path column")
	}
}

func TestReadManifest_JSON(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "m.jsonl")
	content := `{"path":"a.png","method":"blur"}` + "\n" + `{"path":"b.png"}` + "\n"
	if err := os.WriteFile(manifest, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	items, err := ReadManifest(manifest)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if len(items) != 2 || items[1].Path != filepath.Join(dir, "b.png") || items[0].Method != "blur" {
		t.Errorf("items = %+v", items)
	}
}

func TestReadManifest_Parquet(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "m.parquet")

	file, err := os.Create(manifest)
	if err != nil {
		t.Fatal(err)
	}
	writer := parquet.NewGenericWriter[Item](file)
	if _, err := writer.Write([]Item{{Path: "a.png", Method: "pixelate"}, {Path: "b.png"}}); err != nil {
		t.Fatal(err)
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	file.Close()

	items, err := ReadManifest(manifest)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if len(items) != 2 || items[0].Method != "pixelate" || items[0].Path != filepath.Join(dir, "a.png") {
		t.Errorf("items = %+v", items)
	}
}

func TestReadManifest_Directory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.JPG", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.png"), 0o755); err != nil {
		t.Fatal(err)
	}

	items, err := ReadManifest(dir)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if len(items) != 2 || items[0].Path != filepath.Join(dir, "a.JPG") || items[1].Path != filepath.Join(dir, "b.png") {
		t.Errorf("items = %+v", items)
	}
}

func TestRunner_Run(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	writeImage(t, filepath.Join(in, "one.png"))
	writeImage(t, filepath.Join(in, "two.png"))
	if err := os.WriteFile(filepath.Join(in, "broken.png"), []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	runner := NewRunner(newProcessor(), Config{
		Workers:       2,
		OutputDir:     out,
		ReportName:    "report.parquet",
		DefaultMethod: redact.MethodPixelate,
	}, zap.NewNop())

	result, err := runner.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Total != 3 || result.Redacted != 2 || result.Failed != 1 {
		t.Fatalf("result = %+v", result)
	}

	// rows keep manifest order: broken, one, two
	if result.Rows[0].Error == "" || !strings.HasSuffix(result.Rows[0].Path, "broken.png") {
		t.Errorf("rows[0] = %+v", result.Rows[0])
	}
	for _, row := range result.Rows[1:] {
		if row.Categories != pii.CategoryEmail {
			t.Errorf("categories = %q", row.Categories)
		}
		data, err := os.ReadFile(row.Output)
		if err != nil {
			t.Fatalf("output missing: %v", err)
		}
		if _, _, err := imageio.DecodeBytes(data); err != nil {
			t.Errorf("output not decodable: %v", err)
		}
	}

	rows := readReport(t, result.Report)
	if len(rows) != 3 || rows[1].Method != "pixelate" || rows[1].Regions == 0 {
		t.Errorf("report rows = %+v", rows)
	}
}

func TestRunner_InvalidMethod(t *testing.T) {
	in := t.TempDir()
	writeImage(t, filepath.Join(in, "one.png"))

	runner := NewRunner(newProcessor(), Config{OutputDir: t.TempDir()}, zap.NewNop())
	result, err := runner.RunItems(context.Background(), []Item{{Path: filepath.Join(in, "one.png"), Method: "swirl"}})
	if err != nil {
		t.Fatalf("RunItems: %v", err)
	}
	if result.Failed != 1 || result.Report != "" {
		t.Errorf("result = %+v", result)
	}
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(newProcessor(), Config{OutputDir: t.TempDir()}, zap.NewNop())
	if _, err := runner.RunItems(ctx, []Item{{Path: "x.png"}}); err == nil {
		t.Error("expected cancellation error")
	}
}
