package checks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"text/template/parse"

	"git.home.luguber.info/inful/siteqa/internal/buildtest"
	"git.home.luguber.info/inful/siteqa/internal/util/sets"
)

// TemplateVarsTest makes sure every variable referenced by a page template
// has a match in the render context, so no page ships with holes in it.
type TemplateVarsTest struct {
	dir   string
	pages []string
	ctx   map[string]any
}

// NewTemplateVarsTest builds the unresolved variable test over the given
// template pages and the context supplied to the renderer.
func NewTemplateVarsTest(dir string, pages []string, ctx map[string]any) *TemplateVarsTest {
	return &TemplateVarsTest{dir: dir, pages: pages, ctx: ctx}
}

func (t *TemplateVarsTest) Name() string { return "Unresolved Variables" }

func (t *TemplateVarsTest) Check(_ context.Context) (buildtest.Result, error) {
	known := sets.New[string]()
	for key := range t.ctx {
		known.Add(key)
	}

	var output []string
	for _, page := range t.pages {
		content, err := os.ReadFile(filepath.Join(t.dir, page))
		if err != nil {
			return buildtest.Result{}, fmt.Errorf("read template %s: %w", page, err)
		}

		tpl, err := template.New(page).Parse(string(content))
		if err != nil {
			return buildtest.Result{}, fmt.Errorf("parse template %s: %w", page, err)
		}

		missing := sets.New[string]()
		for _, field := range referencedFields(tpl.Tree.Root) {
			if !known.Has(field) {
				missing.Add(field)
			}
		}
		if missing.Len() > 0 {
			output = append(output, fmt.Sprintf("%s: %v", page, sets.Sorted(missing)))
		}
	}

	if len(output) > 0 {
		return buildtest.Fail(output...), nil
	}
	return buildtest.Pass(), nil
}

// referencedFields walks a template parse tree and collects the root field
// name of every ".Field" reference. Locally declared "$" variables are the
// template's own and never need a context match.
func referencedFields(root parse.Node) []string {
	var fields []string
	var walk func(n parse.Node)

	walkPipe := func(p *parse.PipeNode) {
		if p == nil {
			return
		}
		for _, cmd := range p.Cmds {
			for _, arg := range cmd.Args {
				walk(arg)
			}
		}
	}

	walk = func(n parse.Node) {
		switch node := n.(type) {
		case *parse.FieldNode:
			if len(node.Ident) > 0 {
				fields = append(fields, node.Ident[0])
			}
		case *parse.ChainNode:
			walk(node.Node)
		case *parse.ActionNode:
			walkPipe(node.Pipe)
		case *parse.ListNode:
			if node != nil {
				for _, item := range node.Nodes {
					walk(item)
				}
			}
		case *parse.IfNode:
			walkPipe(node.Pipe)
			walk(node.List)
			if node.ElseList != nil {
				walk(node.ElseList)
			}
		case *parse.RangeNode:
			walkPipe(node.Pipe)
			walk(node.List)
			if node.ElseList != nil {
				walk(node.ElseList)
			}
		case *parse.WithNode:
			walkPipe(node.Pipe)
			walk(node.List)
			if node.ElseList != nil {
				walk(node.ElseList)
			}
		case *parse.TemplateNode:
			walkPipe(node.Pipe)
		case *parse.PipeNode:
			walkPipe(node)
		}
	}

	walk(root)
	return fields
}
