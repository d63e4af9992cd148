package templates

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/charmbracelet/log"
)

// Item represents a single questionnaire item. Container types ("block",
// "group") carry child items; value types ("line", "box", "check", "radio",
// "yesno", "tip") carry an id that becomes the answer key.
type Item struct {
	Type        string `json:"type"`
	ID          string `json:"id,omitempty"`
	Text        string `json:"text,omitempty"`
	Cond        string `json:"cond,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Warn        string `json:"warn,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Choices     []any  `json:"choices,omitempty"`
	Items       []Item `json:"items,omitempty"`
}

// Template is a parsed questionnaire template.
type Template struct {
	Items []Item `json:"questionnaire"`
}

var bareKeyPattern = regexp.MustCompile(`([{,\[]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
var lineCommentPattern = regexp.MustCompile(`(?m)^\s*//.*$`)

// NormalizeVSAQON converts relaxed template notation (bare object keys,
// line comments) into strict JSON.
func NormalizeVSAQON(text string) string {
	text = lineCommentPattern.ReplaceAllString(text, "")
	return bareKeyPattern.ReplaceAllString(text, `$1"$2":`)
}

// Parse parses template text (VSAQON or strict JSON) into a Template.
func Parse(text string) (*Template, error) {
	normalized := NormalizeVSAQON(text)
	var tmpl Template
	if err := json.Unmarshal([]byte(normalized), &tmpl); err != nil {
		return nil, fmt.Errorf("failed to parse template: %v", err)
	}
	if len(tmpl.Items) == 0 {
		return nil, fmt.Errorf("template has no questionnaire items")
	}
	return &tmpl, nil
}

// MergeExtension appends the extension's items to the base template. The
// original serves extensions as a second template file layered after the
// first.
func MergeExtension(base, extension *Template) *Template {
	if extension == nil {
		return base
	}
	merged := &Template{Items: make([]Item, 0, len(base.Items)+len(extension.Items))}
	merged.Items = append(merged.Items, base.Items...)
	merged.Items = append(merged.Items, extension.Items...)
	return merged
}

// WalkValueItems visits every item that carries an answer key, depth first.
func (t *Template) WalkValueItems(visit func(item *Item)) {
	var walk func(items []Item)
	walk = func(items []Item) {
		for i := range items {
			item := &items[i]
			if item.ID != "" && len(item.Items) == 0 {
				visit(item)
			}
			if len(item.Items) > 0 {
				walk(item.Items)
			}
		}
	}
	walk(t.Items)
}

// FieldIDs returns the answer keys defined by the template, in document order.
func (t *Template) FieldIDs() []string {
	var ids []string
	t.WalkValueItems(func(item *Item) {
		ids = append(ids, item.ID)
	})
	return ids
}

// FindItem returns the value item with the given id, or nil.
func (t *Template) FindItem(id string) *Item {
	var found *Item
	t.WalkValueItems(func(item *Item) {
		if found == nil && item.ID == id {
			found = item
		}
	})
	if found == nil {
		log.Debugf("Template item not found: %s", id)
	}
	return found
}

// RequiredFieldIDs returns the keys of items marked required.
func (t *Template) RequiredFieldIDs() []string {
	var ids []string
	t.WalkValueItems(func(item *Item) {
		if item.Required {
			ids = append(ids, item.ID)
		}
	})
	return ids
}
