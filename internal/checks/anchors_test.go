package checks

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/siteqa/internal/catalog"
)

const miscHTML = `<html><body>
<h2 id="path-variables">Path Variables</h2>
<h2 id="common-text-editors">Common Text Editors</h2>
<a name="legacy-anchor">old style</a>
</body></html>`

func newAnchorSite(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "misc.html"), []byte(miscHTML), 0o600))
	return dir
}

func TestAnchorTest_AllFragmentsPresent(t *testing.T) {
	dir := newAnchorSite(t)
	cat := &catalog.Catalog{Links: map[string]string{
		"int_misc_paths":   "https://tutorial.example/misc.html#path-variables",
		"int_misc_editors": "https://tutorial.example/misc.html#common-text-editors",
		"int_misc_legacy":  "https://tutorial.example/misc.html#legacy-anchor",
		"int_misc":         "https://tutorial.example/misc.html",
		"ext_repo":         "https://github.com/example/tutorial#readme",
	}}

	at := NewAnchorTest(dir, "https://tutorial.example", cat)
	result, err := at.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Passed, "output: %v", result.Output)
}

func TestAnchorTest_ReportsMissingAnchor(t *testing.T) {
	dir := newAnchorSite(t)
	cat := &catalog.Catalog{Links: map[string]string{
		"int_misc_shells": "https://tutorial.example/misc.html#command-prompts",
	}}

	at := NewAnchorTest(dir, "https://tutorial.example", cat)
	result, err := at.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Passed)
	require.Len(t, result.Output, 1)
	assert.Contains(t, result.Output[0], "int_misc_shells")
	assert.Contains(t, result.Output[0], "command-prompts")
}

func TestAnchorTest_ReportsMissingPage(t *testing.T) {
	dir := t.TempDir()
	cat := &catalog.Catalog{Links: map[string]string{
		"int_gone": "https://tutorial.example/gone.html#top",
	}}

	at := NewAnchorTest(dir, "https://tutorial.example", cat)
	result, err := at.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Passed)
	require.Len(t, result.Output, 1)
	assert.Contains(t, result.Output[0], "int_gone")
}
