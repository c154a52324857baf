// ABOUTME: Deterministic response adaptation for target devices.
// ABOUTME: Truncation, rich-text stripping, and urgency-word neutralization.

package device

import (
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const (
	veryShortLimit = 50
	shortLimit     = 150
	ellipsis       = "..."
)

// urgencyReplacements neutralizes pressure words for safety-filtered
// contexts (automotive). Matching is case-insensitive on word boundaries.
var urgencyReplacements = map[string]string{
	"urgent":      "when convenient",
	"emergency":   "important matter",
	"immediately": "when you can",
	"now":         "soon",
}

// AdaptResponse applies the device's optimization hints to an
// already-generated response. The transforms are order-independent content
// edits: safety filtering rewrites urgency words, audio-only devices get
// rich-text markers stripped, and short-form devices get truncation with an
// ellipsis marker. The input is never regenerated.
func (m *Manager) AdaptResponse(response string, dc *Context) string {
	if dc == nil || response == "" {
		return response
	}

	out := response
	if dc.Hints.SafetyFiltered {
		out = neutralizeUrgency(out)
	}
	if dc.Hints.AudioOnly {
		out = StripRichText(out)
	}
	switch dc.Hints.ResponseLength {
	case "very_short":
		out = truncate(out, veryShortLimit)
	case "short":
		out = truncate(out, shortLimit)
	}
	return out
}

// truncate cuts s to at most limit characters including a trailing
// ellipsis, breaking on a word boundary when one is close enough.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	cut := limit - len(ellipsis)
	head := string(runes[:cut])
	// Prefer a word boundary if one lands in the last third of the cut.
	if idx := strings.LastIndex(head, " "); idx > cut*2/3 {
		head = head[:idx]
	}
	return strings.TrimRight(head, " ,;:") + ellipsis
}

// neutralizeUrgency replaces pressure words with neutral phrasing,
// preserving the rest of the text verbatim.
func neutralizeUrgency(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		trimmed := strings.TrimRight(w, ".,!?;:")
		if repl, ok := urgencyReplacements[strings.ToLower(trimmed)]; ok {
			words[i] = repl + w[len(trimmed):]
		}
	}
	return strings.Join(words, " ")
}

// markdownOnce guards the shared parser. The parser configuration never
// changes and goldmark parsers are safe to share across goroutines.
var (
	markdownOnce   sync.Once
	markdownParser goldmark.Markdown
)

func parser() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownParser = goldmark.New()
	})
	return markdownParser
}

// StripRichText renders markdown to plain text for audio-only delivery.
// Emphasis, links, headings, and code fences are flattened to their textual
// content; block boundaries become single spaces.
func StripRichText(s string) string {
	if !strings.ContainsAny(s, "*_`#[") {
		return s
	}
	source := []byte(s)
	doc := parser().Parser().Parse(text.NewReader(source))

	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			sb.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			for i := 0; i < node.Lines().Len(); i++ {
				line := node.Lines().At(i)
				sb.Write(line.Value(source))
				sb.WriteByte(' ')
			}
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.Heading, *ast.ListItem:
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(sb.String()), " ")
}
