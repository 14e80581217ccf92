package checks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/siteqa/internal/buildtest"
	"git.home.luguber.info/inful/siteqa/internal/catalog"
	"git.home.luguber.info/inful/siteqa/internal/linkcheck"
	"git.home.luguber.info/inful/siteqa/internal/util/sets"
)

// AnchorTest verifies the fragment identifiers of internal catalog links.
// The network check strips fragments (the server never sees them), so this
// test opens the rendered pages on disk and confirms each "#fragment" target
// exists as an element id.
type AnchorTest struct {
	siteDir string
	baseURL string
	entries map[string]string
}

// NewAnchorTest builds the anchor test over the rendered site in siteDir.
func NewAnchorTest(siteDir, baseURL string, cat *catalog.Catalog) *AnchorTest {
	return &AnchorTest{siteDir: siteDir, baseURL: baseURL, entries: cat.InternalEntries()}
}

func (t *AnchorTest) Name() string { return "Anchors" }

func (t *AnchorTest) Check(_ context.Context) (buildtest.Result, error) {
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	anchorsByFile := make(map[string]sets.Set[string])

	var output []string
	for _, name := range names {
		url := t.entries[name]
		stripped := linkcheck.StripFragment(url)
		fragment := strings.TrimPrefix(strings.TrimPrefix(url, stripped), "#")
		if fragment == "" {
			continue
		}

		rel := strings.TrimPrefix(stripped, t.baseURL)
		file := filepath.Join(t.siteDir, filepath.FromSlash(strings.TrimPrefix(rel, "/")))

		anchors, ok := anchorsByFile[file]
		if !ok {
			var err error
			anchors, err = collectAnchorIDs(file)
			if err != nil {
				output = append(output, fmt.Sprintf("%s: %s: %v", name, url, err))
				continue
			}
			anchorsByFile[file] = anchors
		}

		if !anchors.Has(fragment) {
			output = append(output, fmt.Sprintf("%s: %s: missing anchor %q", name, url, fragment))
		}
	}

	if len(output) > 0 {
		return buildtest.Fail(output...), nil
	}
	return buildtest.Pass(), nil
}

// collectAnchorIDs parses a rendered HTML file and gathers every element id
// plus legacy <a name="..."> targets.
func collectAnchorIDs(path string) (sets.Set[string], error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open rendered page: %w", err)
	}
	defer func() {
		_ = f.Close() // Ignore close errors on read-only operation
	}()

	doc, err := html.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse rendered page: %w", err)
	}

	anchors := sets.New[string]()
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, attr := range n.Attr {
				if attr.Key == "id" && attr.Val != "" {
					anchors.Add(attr.Val)
				}
				if attr.Key == "name" && n.Data == "a" && attr.Val != "" {
					anchors.Add(attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)

	return anchors, nil
}
