package variables

import (
	"fmt"
	"regexp"
	"strings"

	"mailer/pkg/models"
)

// placeholderPattern matches {{ key }} with optional whitespace inside the braces.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)

// ReplaceVariables interpolates params into the subject, text and html of c.
// It returns the names of placeholders that had no matching param; those are
// left in the content verbatim.
func ReplaceVariables(c *models.Content, params map[string]any) []string {
	c.Subject = Interpolate(c.Subject, params)
	c.Text = Interpolate(c.Text, params)
	c.HTML = Interpolate(c.HTML, params)

	var unresolved []string
	seen := make(map[string]bool)
	for _, content := range []string{c.Subject, c.Text, c.HTML} {
		for _, name := range GetVariableNames(content) {
			if !seen[name] {
				unresolved = append(unresolved, name)
				seen[name] = true
			}
		}
	}
	return unresolved
}

// Interpolate replaces every {{ key }} in content with the value of
// params[key] in a single pass, so substituted values are never expanded
// again. Values are formatted with fmt.Sprint.
func Interpolate(content string, params map[string]any) string {
	if content == "" || len(params) == 0 {
		return content
	}

	return placeholderPattern.ReplaceAllStringFunc(content, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := params[name]
		if !ok {
			return match
		}
		return format(value)
	})
}

func format(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		// JSON numbers decode as float64; print whole numbers without a fraction
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
	}
	return fmt.Sprint(value)
}

// HasVariables checks if content contains any placeholders
func HasVariables(content string) bool {
	return placeholderPattern.MatchString(content)
}

// GetVariableNames extracts all placeholder names from content
func GetVariableNames(content string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(content, -1)

	var names []string
	seen := make(map[string]bool)

	for _, match := range matches {
		name := strings.TrimSpace(match[1])
		if !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}

	return names
}
