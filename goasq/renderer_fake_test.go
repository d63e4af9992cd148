package goasq

import (
	"sync"

	"github.com/Morningstar/GoASQ/templates"
)

// fakeRenderer is a scripted Renderer for tests. Edit simulates the editor
// emitting one change event for a render pass.
type fakeRenderer struct {
	mu       sync.Mutex
	template *templates.Template
	values   AnswerMap
	readOnly bool
	handlers []func(ChangeEvent)
	renders  int
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{values: AnswerMap{}}
}

func (r *fakeRenderer) SetTemplate(tmpl *templates.Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.template = tmpl
}

func (r *fakeRenderer) SetValues(values AnswerMap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = MergeAnswers(r.values, values)
}

func (r *fakeRenderer) GetItems() map[string]ValueItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make(map[string]ValueItem, len(r.values))
	for key, value := range r.values {
		items[key] = &formItem{value: value}
	}
	return items
}

func (r *fakeRenderer) SetReadOnly(readOnly bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readOnly = readOnly
}

func (r *fakeRenderer) Render() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders++
	return nil
}

func (r *fakeRenderer) Listen(handler func(ChangeEvent)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, handler)
}

// Edit applies user edits and emits the batched change event.
func (r *fakeRenderer) Edit(changes AnswerMap) {
	r.mu.Lock()
	r.values = MergeAnswers(r.values, changes)
	handlers := append([]func(ChangeEvent){}, r.handlers...)
	r.mu.Unlock()
	for _, handler := range handlers {
		handler(ChangeEvent{ChangedValues: changes.Clone()})
	}
}

func (r *fakeRenderer) Values() AnswerMap {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.values.Clone()
}
