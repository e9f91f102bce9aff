package subst

import (
	"context"
	"io"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// markupTemplate is one template found in markup.
type markupTemplate struct {
	name   string
	source string
}

// LoadMarkup registers every <script> element whose type attribute equals
// the manager's script type. The template name comes from the name or
// data-name attribute and the body is the trimmed script text. A script
// without a name fails the whole load before anything is stored. Existing
// templates get a new version. It returns the number of templates loaded.
func (m *TemplateManager) LoadMarkup(ctx context.Context, r io.Reader) (int, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return 0, NewMarkupError(ErrMsgMarkupParseFailed, err)
	}

	found, err := collectScripts(doc, m.scriptType)
	if err != nil {
		return 0, err
	}

	for i, t := range found {
		if _, err := m.Put(ctx, t.name, t.source); err != nil {
			return i, err
		}
		m.logger.Debug(LogMsgMarkupTemplateLoaded, zap.String(LogFieldTemplate, t.name))
	}
	return len(found), nil
}

// LoadMarkupString is LoadMarkup over a string.
func (m *TemplateManager) LoadMarkupString(ctx context.Context, markup string) (int, error) {
	return m.LoadMarkup(ctx, strings.NewReader(markup))
}

// collectScripts walks the document in order and returns the matching
// scripts.
func collectScripts(root *html.Node, scriptType string) ([]markupTemplate, error) {
	var (
		found []markupTemplate
		walk  func(n *html.Node) error
	)
	walk = func(n *html.Node) error {
		if n.Type == html.ElementNode && n.Data == ElementScript && attrValue(n, AttrType) == scriptType {
			name := attrValue(n, AttrName)
			if name == "" {
				name = attrValue(n, AttrDataName)
			}
			if strings.TrimSpace(name) == "" {
				return NewMarkupError(ErrMsgMarkupMissingName, nil)
			}
			found = append(found, markupTemplate{name: name, source: strings.TrimSpace(textContent(n))})
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return found, nil
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
