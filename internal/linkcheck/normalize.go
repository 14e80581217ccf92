package linkcheck

import (
	"strings"

	"git.home.luguber.info/inful/siteqa/internal/util/sets"
)

// StripFragment removes the fragment identifier ("#...") from a URL. The
// fragment is never sent to the server, so two URLs differing only by
// fragment are the same network target.
func StripFragment(rawURL string) string {
	before, _, _ := strings.Cut(rawURL, "#")
	return before
}

// NormalizeTargets strips fragment identifiers and deduplicates, returning
// the distinct network targets in sorted order.
func NormalizeTargets(urls []string) []string {
	targets := sets.New[string]()
	for _, u := range urls {
		if stripped := StripFragment(u); stripped != "" {
			targets.Add(stripped)
		}
	}
	return sets.Sorted(targets)
}
