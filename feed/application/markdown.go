package application

import (
	"bytes"
	"fmt"
	"html/template"
	"path"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

const (
	maxSummaryLength = 160
	imagePathPrefix  = "/images/"
)

// DescriptionRenderer turns a seller's free-form description into HTML that
// is safe to embed in the feed page.
type DescriptionRenderer interface {
	Render(description string) (template.HTML, error)
}

// sellerLinkTransformer points relative image references at the upload
// directory and marks every link as untrusted.
type sellerLinkTransformer struct{}

func (t *sellerLinkTransformer) Transform(node *ast.Document, reader text.Reader, pc parser.Context) {
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch v := n.(type) {
		case *ast.Image:
			dest := string(v.Destination)
			if isRelativeLink(dest) {
				v.Destination = []byte(imagePathPrefix + path.Base(dest))
			}
		case *ast.Link:
			v.SetAttributeString("rel", []byte("nofollow noopener"))
			v.SetAttributeString("target", []byte("_blank"))
		}

		return ast.WalkContinue, nil
	})
}

func isRelativeLink(dest string) bool {
	if dest == "" {
		return false
	}

	if strings.HasPrefix(dest, "#") {
		return false
	}

	if strings.HasPrefix(dest, "/") {
		return !strings.HasPrefix(dest, "//")
	}

	if strings.HasPrefix(dest, "./") || strings.HasPrefix(dest, "../") {
		return true
	}

	return !strings.Contains(dest, ":")
}

type goldmarkDescriptionRenderer struct {
	md goldmark.Markdown
}

// NewDescriptionRenderer returns a goldmark backed renderer. Raw HTML in the
// description is dropped, never passed through.
func NewDescriptionRenderer() DescriptionRenderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.Strikethrough,
			extension.Linkify,
		),
		goldmark.WithParserOptions(
			parser.WithASTTransformers(
				util.Prioritized(&sellerLinkTransformer{}, 100),
			),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
		),
	)

	return &goldmarkDescriptionRenderer{md: md}
}

func (r *goldmarkDescriptionRenderer) Render(description string) (template.HTML, error) {
	if strings.TrimSpace(description) == "" {
		return "", nil
	}

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(description), &buf); err != nil {
		return "", fmt.Errorf("failed to convert description to HTML: %w", err)
	}

	return template.HTML(buf.String()), nil
}

// summarize returns the first paragraph of a description as plain text,
// cut at a word boundary when it is too long.
func summarize(description string) string {
	lines := strings.Split(description, "\n")
	var paragraphLines []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			if len(paragraphLines) > 0 {
				break
			}
			continue
		}

		trimmed = strings.TrimLeft(trimmed, "#>*-+ ")
		if trimmed == "" {
			continue
		}

		paragraphLines = append(paragraphLines, trimmed)
	}

	if len(paragraphLines) == 0 {
		return ""
	}

	summary := strings.Join(paragraphLines, " ")

	runes := []rune(summary)
	if len(runes) > maxSummaryLength {
		summary = string(runes[:maxSummaryLength])
		if lastSpace := strings.LastIndexAny(summary, " \t"); lastSpace > 0 {
			summary = summary[:lastSpace]
		}
		summary += "..."
	}

	return summary
}
