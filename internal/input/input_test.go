package input

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/doc-harvester/internal/harvest"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadURLsCSV(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "output.csv", "\ufeffTitle, url \n"+
		"\"Report, 2023\",https://www.scribd.com/document/1\n"+
		"Manual,https://www.scribd.com/document/2\n"+
		"Again,https://www.scribd.com/document/1\n"+
		"Blank,\n")

	items, err := ReadURLs(path)
	require.NoError(t, err)
	assert.Equal(t, []harvest.SourceItem{
		{URL: "https://www.scribd.com/document/1", Index: 0},
		{URL: "https://www.scribd.com/document/2", Index: 1},
	}, items)
}

func TestReadURLsText(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "urls.txt", "# batch one\nhttps://a/1\n\n  https://a/2  \nhttps://a/1\n")
	items, err := ReadURLs(path)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "https://a/2", items[1].URL)
}

func TestReadURLsEmpty(t *testing.T) {
	t.Parallel()

	items, err := ReadURLs(writeFile(t, "empty.csv", ""))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestReadURLsErrors(t *testing.T) {
	t.Parallel()

	_, err := ReadURLs(filepath.Join(t.TempDir(), "missing.csv"))
	require.ErrorContains(t, err, "open input")

	_, err = ReadURLs(writeFile(t, "nourl.csv", "Title,Link\na,b\n"))
	require.ErrorIs(t, err, ErrNoURLColumn)
}

func TestParseCSVRaggedRows(t *testing.T) {
	t.Parallel()

	urls, err := ParseCSV(strings.NewReader("Title,Notes,URL\nonly-title\nx,y,https://a/3\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a/3"}, urls)
}
