// Package input reads source URL lists for the fetch pipeline.
package input

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/doc-harvester/internal/harvest"
)

// ErrNoURLColumn means a CSV input has no URL header.
var ErrNoURLColumn = errors.New("csv input has no URL column")

// ReadURLs loads path and returns de-duplicated items in first-occurrence
// order. Files ending in .csv must have a URL column; anything else is read
// as one URL per line with # comments.
func ReadURLs(path string) ([]harvest.SourceItem, error) {
	// #nosec G304 -- path is an operator-supplied input file.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	var urls []string
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		urls, err = ParseCSV(f)
	} else {
		urls, err = ParseLines(f)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return harvest.Dedupe(urls), nil
}

// ParseCSV returns the URL column of r. The header match ignores case and
// surrounding space.
func ParseCSV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")), "url") {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, ErrNoURLColumn
	}
	var urls []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return urls, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		if col < len(rec) {
			urls = append(urls, rec[col])
		}
	}
}

// ParseLines returns one URL per non-blank, non-comment line.
func ParseLines(r io.Reader) ([]string, error) {
	var urls []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan lines: %w", err)
	}
	return urls, nil
}
