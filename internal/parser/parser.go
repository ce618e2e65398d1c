// Package parser derives chunk boundaries from the Go AST: one span per
// top-level declaration, doc comment included. Files in other languages
// fall through to the chunker's sliding windows.
package parser

import (
	"fmt"
	"go/ast"
	goparser "go/parser"
	"go/token"

	"github.com/dshills/diffcontext/internal/chunker"
)

// minSpanLines keeps declaration spans from degenerating into one-line
// chunks; tiny consecutive declarations are merged into one span.
const minSpanLines = 5

// Provider implements chunker.SpanProvider for Go source.
type Provider struct{}

func New() *Provider { return &Provider{} }

// Spans returns one line span per top-level declaration. Empty content is
// the chunker's grammar probe and succeeds with no spans. A syntax error
// is returned as-is so the caller can fall back to windows.
func (p *Provider) Spans(content []byte, language string) ([]chunker.Span, error) {
	if language != "go" {
		return nil, chunker.ErrUnsupportedLanguage
	}
	if len(content) == 0 {
		return nil, nil
	}

	fset := token.NewFileSet()
	file, err := goparser.ParseFile(fset, "src.go", content, goparser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("go parse failed: %w", err)
	}

	spans := make([]chunker.Span, 0, len(file.Decls))
	for _, decl := range file.Decls {
		start := decl.Pos()
		if doc := declDoc(decl); doc != nil {
			start = doc.Pos()
		}
		spans = append(spans, chunker.Span{
			StartLine: fset.Position(start).Line,
			EndLine:   fset.Position(decl.End()).Line,
		})
	}
	if len(spans) == 0 {
		return nil, fmt.Errorf("no declarations in file")
	}
	return mergeSmall(spans), nil
}

func declDoc(decl ast.Decl) *ast.CommentGroup {
	switch d := decl.(type) {
	case *ast.FuncDecl:
		return d.Doc
	case *ast.GenDecl:
		return d.Doc
	}
	return nil
}

// mergeSmall folds runs of short declarations (imports, single consts)
// into their neighbor so each span carries enough text to embed usefully.
func mergeSmall(spans []chunker.Span) []chunker.Span {
	merged := spans[:1]
	for _, span := range spans[1:] {
		last := &merged[len(merged)-1]
		if last.EndLine-last.StartLine+1 < minSpanLines {
			last.EndLine = span.EndLine
			continue
		}
		merged = append(merged, span)
	}
	return merged
}
