package goasq

import (
	"github.com/Morningstar/GoASQ/templates"
)

// ChangeEvent carries every answer changed by one render pass of the editor.
type ChangeEvent struct {
	ChangedValues AnswerMap
}

// ValueItem is a rendered questionnaire field.
type ValueItem interface {
	GetValue() string
}

// Renderer is the questionnaire template editor collaborator. The sync core
// drives it through this capability surface and never touches presentation
// directly.
type Renderer interface {
	SetTemplate(tmpl *templates.Template)
	SetValues(values AnswerMap)
	GetItems() map[string]ValueItem
	SetReadOnly(readOnly bool)
	Render() error

	// Listen registers a handler for change events. The renderer batches a
	// render pass and emits one event carrying all keys changed in it.
	Listen(handler func(ChangeEvent))
}
