package download

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

// Filename derives the target file name from the last path segment of
// rawURL. Names with no extension get defaultExt appended; URLs with no
// usable segment fall back to document_<unix>.<ext>.
func Filename(rawURL string, now time.Time, defaultExt string) string {
	ext := normalizeExt(defaultExt)
	name := lastSegment(rawURL)
	if name == "" {
		return fmt.Sprintf("document_%d%s", now.Unix(), ext)
	}
	if path.Ext(name) == "" {
		name += ext
	}
	return name
}

func lastSegment(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	p := u.Path
	if decoded, err := url.PathUnescape(u.EscapedPath()); err == nil {
		p = decoded
	}
	base := path.Base(strings.TrimRight(p, "/"))
	if base == "." || base == "/" {
		return ""
	}
	return sanitize(base)
}

// sanitize replaces characters that are unsafe in file names on common filesystems.
func sanitize(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return -1
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		}
		return r
	}, name)
	cleaned = strings.Trim(cleaned, " .")
	if strings.Trim(cleaned, "_") == "" {
		return ""
	}
	return cleaned
}

func normalizeExt(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" {
		return ".pdf"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
