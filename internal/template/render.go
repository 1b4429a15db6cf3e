// Package template implements the notification message renderer.
//
// The renderer is deliberately not text/template: the contract is
// fail-open. A placeholder with no matching data is preserved verbatim in
// the output and reported in Result.Unresolved, never raised as an error,
// so partial template data does not block delivery.
package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Result is the outcome of one render. Unresolved placeholders are a
// normal, non-error outcome.
type Result struct {
	Output     string
	Unresolved []string
}

// Complete reports whether every placeholder was substituted.
func (r Result) Complete() bool { return len(r.Unresolved) == 0 }

var (
	// {name} or {namespace.field}; placeholder names are word characters
	// joined by dots, which keeps CSS/JSON braces in HTML bodies intact.
	placeholderRe = regexp.MustCompile(`\{(\w+(?:\.\w+)*)\}`)

	// {% if path op value %}content{% endif %}
	conditionalRe = regexp.MustCompile(`(?s)\{%\s*if\s+(\w+(?:\.\w+)*)\s*(==|>=|>)\s*(\S+)\s*%\}(.*?)\{%\s*endif\s*%\}`)
)

// Render substitutes dotted placeholders from the nested data map and
// evaluates presence-gated conditional blocks. It is pure and stateless.
func Render(tpl string, data map[string]any) Result {
	out := renderConditionals(tpl, data)

	var unresolved []string
	out = placeholderRe.ReplaceAllStringFunc(out, func(match string) string {
		path := match[1 : len(match)-1]
		v, ok := lookup(data, path)
		if !ok {
			unresolved = append(unresolved, path)
			return match
		}
		return stringify(v)
	})

	return Result{Output: out, Unresolved: unresolved}
}

// renderConditionals keeps a block's content when its condition holds and
// drops the block entirely otherwise. A missing variable or a comparison
// that cannot be evaluated counts as false.
func renderConditionals(tpl string, data map[string]any) string {
	return conditionalRe.ReplaceAllStringFunc(tpl, func(match string) string {
		groups := conditionalRe.FindStringSubmatch(match)
		path, op, operand, content := groups[1], groups[2], groups[3], groups[4]

		v, ok := lookup(data, path)
		if !ok {
			return ""
		}
		if evaluate(v, op, operand) {
			return content
		}
		return ""
	})
}

func evaluate(v any, op, operand string) bool {
	switch op {
	case "==":
		return stringify(v) == operand
	case ">", ">=":
		left, lok := toFloat(v)
		right, rok := toFloat(operand)
		if !lok || !rok {
			return false
		}
		if op == ">" {
			return left > right
		}
		return left >= right
	}
	return false
}

// lookup walks a dotted path through nested maps.
func lookup(data map[string]any, path string) (any, bool) {
	var current any = data
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; render integers without a fraction.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}
