package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Format names a report encoding.
type Format string

// Supported report formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts a case-insensitive format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "txt":
		return FormatText, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// Ext returns the file extension for f.
func (f Format) Ext() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatYAML:
		return ".yaml"
	default:
		return ".txt"
	}
}

func (f Format) contentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Render encodes run in format f.
func Render(w io.Writer, run Run, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(run); err != nil {
			return fmt.Errorf("encode json report: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(run); err != nil {
			return fmt.Errorf("encode yaml report: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("flush yaml report: %w", err)
		}
		return nil
	case FormatText:
		return renderText(w, run)
	default:
		return fmt.Errorf("unknown report format %q", f)
	}
}

func renderText(w io.Writer, run Run) error {
	var b strings.Builder
	b.WriteString("=== DOWNLOAD REPORT ===\n")
	fmt.Fprintf(&b, "Run: %s\n", run.ID)
	fmt.Fprintf(&b, "Started: %s\n", run.StartedAt.Format(time.RFC3339))
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "Finished: %s\n", run.FinishedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Total URLs processed: %d\n", run.Total)
	fmt.Fprintf(&b, "Successful downloads: %d\n", run.Succeeded)
	fmt.Fprintf(&b, "Failed downloads: %d\n", run.Failed)
	fmt.Fprintf(&b, "Success rate: %.1f%%\n", run.SuccessRate*100)

	if ok := run.SucceededEntries(); len(ok) > 0 {
		b.WriteString("\nSUCCESSFUL DOWNLOADS:\n")
		for _, e := range ok {
			fmt.Fprintf(&b, "%s -> %s\n", e.URL, e.Path)
		}
	}
	if failed := run.FailedEntries(); len(failed) > 0 {
		b.WriteString("\nFAILED DOWNLOADS:\n")
		for _, e := range failed {
			fmt.Fprintf(&b, "%s -> %s\n", e.URL, e.Error)
		}
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write text report: %w", err)
	}
	return nil
}

// BlobStore is where report files are written.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// FileName returns download_report_YYYYMMDD_HHMMSS<ext> for the run's finish time.
func FileName(run Run, f Format) string {
	ts := run.FinishedAt
	if ts.IsZero() {
		ts = run.StartedAt
	}
	return "download_report_" + ts.Format("20060102_150405") + f.Ext()
}

// Write renders run once per format and stores each file. It returns the
// URIs of the written files.
func Write(ctx context.Context, store BlobStore, run Run, formats []Format) ([]string, error) {
	uris := make([]string, 0, len(formats))
	for _, f := range formats {
		var buf bytes.Buffer
		if err := Render(&buf, run, f); err != nil {
			return uris, err
		}
		uri, err := store.PutObject(ctx, FileName(run, f), f.contentType(), &buf)
		if err != nil {
			return uris, fmt.Errorf("store %s report: %w", f, err)
		}
		uris = append(uris, uri)
	}
	return uris, nil
}
