// Package template provides expression rendering for dynamic node
// configuration and branch conditions.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// Render parses and executes a Go template expression against the given data
// and coerces the textual result back into a JSON value, a number or a
// boolean when it looks like one.
func Render(expression string, data map[string]any) (any, error) {
	tmpl, err := template.
		New("expression").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}

				num := make([]byte, 1)
				if _, err := rand.Read(num); err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expression '%s': %w", expression, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute expression '%s': %w", expression, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any
		if err := json.Unmarshal([]byte(result), &jsonResult); err == nil {
			return jsonResult, nil
		}
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// EvaluateBool renders a condition expression and converts the result to a
// boolean using truthiness rules: non-zero numbers, non-empty strings and
// non-empty collections are true.
func EvaluateBool(expression string, data map[string]any) (bool, error) {
	result, err := Render(expression, data)
	if err != nil {
		return false, err
	}

	return Truthy(result), nil
}

// Truthy converts a rendered value to a boolean.
func Truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}

		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	case nil:
		return false
	default:
		return false
	}
}
