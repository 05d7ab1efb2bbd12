package agent

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// ExtractCode returns the body of the first fenced code block in reply whose
// info string names language, else the first fenced block of any language.
// A reply without fences is returned trimmed, as-is.
func ExtractCode(reply, language string) string {
	source := []byte(reply)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var first, preferred string
	var haveFirst bool
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		body := blockBody(block, source)
		if !haveFirst {
			first, haveFirst = body, true
		}
		if language != "" && matchesLanguage(string(block.Language(source)), language) {
			preferred = body
			return ast.WalkStop, nil
		}
		return ast.WalkSkipChildren, nil
	})

	switch {
	case preferred != "":
		return preferred
	case haveFirst:
		return first
	default:
		return strings.TrimSpace(reply)
	}
}

func blockBody(block *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.String()
}

var languageAliases = map[string][]string{
	"python": {"python", "py", "python3"},
	"go":     {"go", "golang"},
	"elixir": {"elixir", "ex", "exs"},
	"shell":  {"sh", "shell", "bash"},
}

func matchesLanguage(info, language string) bool {
	info = strings.ToLower(strings.TrimSpace(info))
	language = strings.ToLower(language)
	if info == language {
		return true
	}
	for _, alias := range languageAliases[language] {
		if info == alias {
			return true
		}
	}
	return false
}

// fenceLanguage is the info string used when embedding a candidate in a prompt.
func fenceLanguage(language string) string {
	if aliases, ok := languageAliases[strings.ToLower(language)]; ok {
		return aliases[0]
	}
	return language
}
