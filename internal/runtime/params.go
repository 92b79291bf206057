package runtime

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oliveagle/jsonpath"
)

// placeholder matches "{$.path}" tokens in texts.
var placeholder = regexp.MustCompile(`\{(\$[^{}]*)\}`)

// interpolate replaces {$.collected_data.<field>}, {$.user_input} and
// {$.contact_id} placeholders. Unresolvable paths render as empty strings.
func (e *Engine) interpolate(text string, r *run) string {
	if !strings.Contains(text, "{$") {
		return text
	}
	return Interpolate(text, templateData(r))
}

func templateData(r *run) map[string]any {
	collected := make(map[string]any)
	if r.session != nil {
		for k, v := range r.session.CollectedData {
			collected[k] = v
		}
	}
	return map[string]any{
		"collected_data": collected,
		"user_input":     r.event.UserInput,
		"contact_id":     r.event.ContactID,
	}
}

// Interpolate resolves every "{$...}" JSONPath placeholder in text against data.
// Only scalar values are rendered; paths selecting a map or a list render as
// empty strings so a placeholder never dumps collected data wholesale.
func Interpolate(text string, data map[string]any) string {
	return placeholder.ReplaceAllStringFunc(text, func(token string) string {
		path := placeholder.FindStringSubmatch(token)[1]
		value, err := jsonpath.JsonPathLookup(data, path)
		if err != nil {
			return ""
		}
		return scalar(value)
	})
}

func scalar(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case bool, int, int64, float64:
		return fmt.Sprintf("%v", v)
	default:
		return ""
	}
}
