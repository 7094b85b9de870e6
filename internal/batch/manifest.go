package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/segmentio/parquet-go"
)

// ReadManifest loads the items listed by path. A directory lists every image
// directly inside it, sorted by name.
func ReadManifest(path string) ([]Item, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}

	var items []Item
	base := filepath.Dir(path)

	switch {
	case info.IsDir():
		items, err = readDir(path)
		base = path
	default:
		switch DetectFileFormat(path) {
		case FormatParquet:
			items, err = readParquet(path)
		case FormatJSON:
			items, err = readJSON(path)
		default:
			items, err = readCSV(path)
		}
	}
	if err != nil {
		return nil, err
	}

	for i := range items {
		items[i].Path = resolve(base, items[i].Path)
		if items[i].Output != "" {
			items[i].Output = resolve(base, items[i].Output)
		}
	}
	return items, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func readDir(dir string) ([]Item, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	var items []Item
	for _, e := range entries {
		if e.IsDir() || !IsImagePath(e.Name()) {
			continue
		}
		items = append(items, Item{Path: e.Name()})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	return items, nil
}

// readCSV maps columns by header name; only "path" is required
func readCSV(path string) ([]Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := map[string]int{"path": -1, "method": -1, "output": -1}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, ok := cols[name]; ok {
			cols[name] = i
		}
	}
	if cols["path"] < 0 {
		return nil, errors.New("CSV manifest has no path column")
	}

	field := func(record []string, name string) string {
		i := cols[name]
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var items []Item
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record %d: %w", line, err)
		}

		item := Item{
			Path:   field(record, "path"),
			Method: field(record, "method"),
			Output: field(record, "output"),
		}
		if item.Path == "" {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func readParquet(path string) ([]Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Parquet file: %w", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	var items []Item
	for {
		var item Item
		err := reader.Read(&item)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read Parquet record: %w", err)
		}
		if item.Path != "" {
			items = append(items, item)
		}
	}
	return items, nil
}

// readJSON reads one JSON object per line
func readJSON(path string) ([]Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSON file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)

	var items []Item
	for {
		var item Item
		err := decoder.Decode(&item)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read JSON record: %w", err)
		}
		if item.Path != "" {
			items = append(items, item)
		}
	}
	return items, nil
}
