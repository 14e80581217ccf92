package checks

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"git.home.luguber.info/inful/siteqa/internal/buildtest"
)

// consoleSession is one "$ command" line with the output the tutorial claims
// it produces.
type consoleSession struct {
	Command string
	Want    string
}

// CodeblockTest makes sure the tutorial's console code blocks do what the
// text claims: every fenced "console" block is replayed and its output
// compared against the lines shown beneath each command.
type CodeblockTest struct {
	dir string
	run func(ctx context.Context, command string) (string, error)
}

// NewCodeblockTest builds the code sample test over the Markdown sources in
// dir.
func NewCodeblockTest(dir string) *CodeblockTest {
	return &CodeblockTest{dir: dir, run: runShell}
}

func (t *CodeblockTest) Name() string { return "Codeblocks" }

func (t *CodeblockTest) Check(ctx context.Context) (buildtest.Result, error) {
	var files []string
	err := filepath.WalkDir(t.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".md") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return buildtest.Result{}, fmt.Errorf("scan %s for markdown: %w", t.dir, err)
	}
	sort.Strings(files)

	var output []string
	for _, file := range files {
		lines, err := t.checkFile(ctx, file)
		if err != nil {
			return buildtest.Result{}, err
		}
		output = append(output, lines...)
	}

	if len(output) > 0 {
		return buildtest.Fail(output...), nil
	}
	return buildtest.Pass(), nil
}

func (t *CodeblockTest) checkFile(ctx context.Context, path string) ([]string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	rel, relErr := filepath.Rel(t.dir, path)
	if relErr != nil {
		rel = path
	}

	var lines []string
	for _, session := range extractConsoleSessions(src) {
		got, err := t.run(ctx, session.Command)
		if err != nil {
			lines = append(lines, fmt.Sprintf("%s: $ %s: %v", rel, session.Command, err))
			continue
		}
		if strings.TrimSpace(got) != strings.TrimSpace(session.Want) {
			lines = append(lines, fmt.Sprintf("%s: $ %s: got %q, want %q",
				rel, session.Command, strings.TrimSpace(got), strings.TrimSpace(session.Want)))
		}
	}
	return lines, nil
}

// extractConsoleSessions pulls fenced "console" blocks out of Markdown via
// the Goldmark AST and splits them into command/expected-output pairs.
func extractConsoleSessions(src []byte) []consoleSession {
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(src))

	var sessions []consoleSession
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		fcb, ok := n.(*gmast.FencedCodeBlock)
		if !ok || string(fcb.Language(src)) != "console" {
			return gmast.WalkContinue, nil
		}

		var b bytes.Buffer
		for i := range fcb.Lines().Len() {
			seg := fcb.Lines().At(i)
			b.Write(seg.Value(src))
		}
		sessions = append(sessions, splitSessions(b.String())...)
		return gmast.WalkContinue, nil
	})
	return sessions
}

func splitSessions(block string) []consoleSession {
	var sessions []consoleSession
	var current *consoleSession
	for _, line := range strings.Split(block, "\n") {
		if cmd, ok := strings.CutPrefix(line, "$ "); ok {
			if current != nil {
				sessions = append(sessions, *current)
			}
			current = &consoleSession{Command: cmd}
			continue
		}
		if current != nil {
			if current.Want != "" {
				current.Want += "\n"
			}
			current.Want += line
		}
	}
	if current != nil {
		sessions = append(sessions, *current)
	}
	return sessions
}

func runShell(ctx context.Context, command string) (string, error) {
	out, err := exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("run %q: %w", command, err)
	}
	return string(out), nil
}
