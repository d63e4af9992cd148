package goasq

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"

	"github.com/Morningstar/GoASQ/messages"
	"github.com/Morningstar/GoASQ/templates"
)

// FormRenderer renders a questionnaire template as an interactive terminal
// form built on huh. It is the one concrete Renderer implementation; the
// sync core only ever sees the Renderer interface.
type FormRenderer struct {
	mu        sync.Mutex
	template  *templates.Template
	values    AnswerMap
	readOnly  bool
	handlers  []func(ChangeEvent)
	evaluator *templates.CondEvaluator
}

// NewFormRenderer creates an empty terminal form renderer.
func NewFormRenderer() *FormRenderer {
	return &FormRenderer{
		values:    AnswerMap{},
		evaluator: templates.NewCondEvaluator(),
	}
}

// SetTemplate installs the template the next render pass will show.
func (r *FormRenderer) SetTemplate(tmpl *templates.Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.template = tmpl
}

// SetValues layers the given answers over the current ones.
func (r *FormRenderer) SetValues(values AnswerMap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = MergeAnswers(r.values, values)
}

// SetReadOnly switches the form between editable and display-only mode.
func (r *FormRenderer) SetReadOnly(readOnly bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readOnly = readOnly
}

// Listen registers a change handler. Handlers receive one event per render
// pass, carrying every answer that pass changed.
func (r *FormRenderer) Listen(handler func(ChangeEvent)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, handler)
}

type formItem struct {
	value string
}

func (f *formItem) GetValue() string {
	return f.value
}

// GetItems returns the current field values keyed by field id.
func (r *FormRenderer) GetItems() map[string]ValueItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make(map[string]ValueItem, len(r.values))
	for key, value := range r.values {
		items[key] = &formItem{value: value}
	}
	return items
}

// fieldBindings holds the per-pass destinations huh fields write into.
type fieldBindings struct {
	text  map[string]*string
	check map[string]*bool
}

// Render runs one interactive pass over the template and emits a single
// change event with everything the user edited. In read-only mode the pass
// collects nothing and emits nothing.
func (r *FormRenderer) Render() error {
	r.mu.Lock()
	tmpl := r.template
	readOnly := r.readOnly
	before := r.values.Clone()
	r.mu.Unlock()

	if tmpl == nil {
		return fmt.Errorf("no template has been set")
	}
	if readOnly {
		log.Debug("Render pass skipped, form is read-only")
		return nil
	}

	fields, bindings := r.buildFields(tmpl, before)
	if len(fields) == 0 {
		log.Warnf("Template produced no visible fields")
		return nil
	}

	form := huh.NewForm(huh.NewGroup(fields...))
	if err := form.Run(); err != nil {
		return fmt.Errorf("failed to run questionnaire form: %v", err)
	}

	changed := AnswerMap{}
	for id, binding := range bindings.text {
		if *binding != before[id] {
			changed[id] = *binding
		}
	}
	for id, binding := range bindings.check {
		value := "unchecked"
		if *binding {
			value = messages.VersionMarkerChecked
		}
		// An untouched unchecked box stays unanswered.
		if before[id] == "" && value == "unchecked" {
			continue
		}
		if value != before[id] {
			changed[id] = value
		}
	}
	if len(changed) == 0 {
		return nil
	}

	r.mu.Lock()
	r.values = MergeAnswers(r.values, changed)
	handlers := append([]func(ChangeEvent){}, r.handlers...)
	r.mu.Unlock()

	for _, handler := range handlers {
		handler(ChangeEvent{ChangedValues: changed})
	}
	return nil
}

// buildFields converts visible template value items into huh fields bound to
// per-field destinations.
func (r *FormRenderer) buildFields(tmpl *templates.Template, answers AnswerMap) ([]huh.Field, *fieldBindings) {
	var fields []huh.Field
	bindings := &fieldBindings{
		text:  make(map[string]*string),
		check: make(map[string]*bool),
	}

	tmpl.WalkValueItems(func(item *templates.Item) {
		if messages.IsVersionMarker(item.ID) {
			return
		}
		if !r.evaluator.Visible(item, answers) {
			return
		}

		switch item.Type {
		case "check", "yesno":
			checked := answers[item.ID] == messages.VersionMarkerChecked ||
				answers[item.ID] == "yes"
			binding := &checked
			bindings.check[item.ID] = binding
			fields = append(fields, huh.NewConfirm().
				Title(item.Text).
				Value(binding))
		case "box":
			value := answers[item.ID]
			binding := &value
			bindings.text[item.ID] = binding
			fields = append(fields, huh.NewText().
				Title(item.Text).
				Placeholder(item.Placeholder).
				Value(binding))
		case "radio":
			value := answers[item.ID]
			binding := &value
			bindings.text[item.ID] = binding
			options := make([]huh.Option[string], 0, len(item.Choices))
			for _, choice := range item.Choices {
				if label, ok := choice.(string); ok {
					options = append(options, huh.NewOption(label, label))
				}
			}
			fields = append(fields, huh.NewSelect[string]().
				Title(item.Text).
				Options(options...).
				Value(binding))
		default:
			// "line" and anything unrecognized render as a single input.
			value := answers[item.ID]
			binding := &value
			bindings.text[item.ID] = binding
			fields = append(fields, huh.NewInput().
				Title(item.Text).
				Placeholder(item.Placeholder).
				Value(binding))
		}
	})

	return fields, bindings
}
