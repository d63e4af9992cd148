package templates

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Conditional visibility. An item's "cond" attribute is an expression over
// the current answers; a field id evaluates to its answer value, an
// unanswered field to the empty string.

// CondEvaluator compiles and caches item visibility conditions.
type CondEvaluator struct {
	programs map[string]*vm.Program
}

// NewCondEvaluator creates an evaluator with an empty program cache.
func NewCondEvaluator() *CondEvaluator {
	return &CondEvaluator{programs: make(map[string]*vm.Program)}
}

// Visible evaluates an item's condition against the given answers. Items
// without a condition are always visible. A condition that fails to compile
// or evaluate leaves the item visible; hiding content on a broken expression
// would silently drop questions.
func (c *CondEvaluator) Visible(item *Item, answers map[string]string) bool {
	if item.Cond == "" {
		return true
	}
	result, err := c.evaluate(item.Cond, answers)
	if err != nil {
		log.Warnf("Failed to evaluate condition %q: %v", item.Cond, err)
		return true
	}
	return result
}

func (c *CondEvaluator) evaluate(cond string, answers map[string]string) (bool, error) {
	program, ok := c.programs[cond]
	if !ok {
		var err error
		program, err = expr.Compile(cond, expr.AllowUndefinedVariables())
		if err != nil {
			return false, fmt.Errorf("failed to compile condition: %v", err)
		}
		c.programs[cond] = program
	}

	env := make(map[string]any, len(answers))
	for key, value := range answers {
		env[key] = value
	}

	output, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("failed to run condition: %v", err)
	}

	switch v := output.(type) {
	case bool:
		return v, nil
	case string:
		// A bare field reference is truthy when the field has been answered
		// with anything other than an unchecked marker.
		return v != "" && v != "unchecked", nil
	case nil:
		return false, nil
	default:
		return true, nil
	}
}
