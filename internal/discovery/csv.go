package discovery

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV writes links with a Title,URL header.
func WriteCSV(w io.Writer, links []Link) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Title", "URL"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, l := range links {
		if err := cw.Write([]string{l.Title, l.URL}); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
