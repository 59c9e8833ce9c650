package discovery

import "strings"

var (
	resultMarkers = []string{
		"mjjyud",
		`id="search"`,
		`id="rso"`,
		"search results",
	}
	blockMarkers = []string{
		"captcha",
		"unusual traffic",
		"not a robot",
		"/sorry/",
	}
)

// Blocked reports whether html looks like an interstitial instead of a
// result page: it carries a captcha marker, or it has neither result markers
// nor any mention of domain.
func Blocked(html, domain string) bool {
	lower := strings.ToLower(html)
	for _, marker := range blockMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	if domain != "" && strings.Contains(lower, strings.ToLower(domain)) {
		return false
	}
	for _, marker := range resultMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}
