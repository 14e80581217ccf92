// Package checks contains the concrete build tests run by the harness. Each
// is a thin classification layer over its collaborator; the heavy lifting
// lives in the packages it drives.
package checks

import (
	"context"

	"git.home.luguber.info/inful/siteqa/internal/buildtest"
	"git.home.luguber.info/inful/siteqa/internal/catalog"
	"git.home.luguber.info/inful/siteqa/internal/linkcheck"
)

// LinkTest verifies that every templated link in the catalog is alive.
type LinkTest struct {
	checker      *linkcheck.Checker
	catalog      *catalog.Catalog
	externalOnly bool
	warn         bool
}

// NewLinkTest builds the link verification test. When externalOnly is set,
// catalog entries following the internal naming convention are excluded
// before dedup. When warn is set, dead links are reported as warnings and
// the test passes regardless.
func NewLinkTest(checker *linkcheck.Checker, cat *catalog.Catalog, externalOnly, warn bool) *LinkTest {
	return &LinkTest{checker: checker, catalog: cat, externalOnly: externalOnly, warn: warn}
}

func (t *LinkTest) Name() string { return "Links" }

// Check runs the engine over the catalog's URL set. Tolerated transport
// warnings surface in Result.Warnings and never fail the result; an
// intolerable transport failure aborts the batch via the returned error.
func (t *LinkTest) Check(ctx context.Context) (buildtest.Result, error) {
	report, err := t.checker.CheckAll(ctx, t.catalog.URLs(t.externalOnly))
	if err != nil {
		return buildtest.Result{}, err
	}

	warnings := report.WarningLines()
	if !report.Passed() {
		if t.warn {
			return buildtest.Pass().WithWarnings(append(report.Diagnostics(), warnings...)...), nil
		}
		return buildtest.Fail(report.Diagnostics()...).WithWarnings(warnings...), nil
	}
	return buildtest.Pass().WithWarnings(warnings...), nil
}
