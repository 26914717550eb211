package variables

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mailer/pkg/models"
)

func TestInterpolate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		params  map[string]any
		want    string
	}{
		{"tight braces", "Hi {{name}}", map[string]any{"name": "Sam"}, "Hi Sam"},
		{"spaced braces", "Hi {{ name }}!", map[string]any{"name": "Sam"}, "Hi Sam!"},
		{"tabs and newlines", "Hi {{\tname\n}}", map[string]any{"name": "Sam"}, "Hi Sam"},
		{"every occurrence", "{{a}}-{{ a }}-{{a }}", map[string]any{"a": "x"}, "x-x-x"},
		{"unresolved stays", "Hi {{name}}, {{ code }}", map[string]any{"name": "Sam"}, "Hi Sam, {{ code }}"},
		{"number", "You have {{count}} new", map[string]any{"count": float64(3)}, "You have 3 new"},
		{"fraction", "{{ratio}}", map[string]any{"ratio": 0.5}, "0.5"},
		{"regex chars in key", "{{a.b}} {{a+b}}", map[string]any{"a.b": "1", "a+b": "2"}, "1 2"},
		{"dollar in value", "{{price}}", map[string]any{"price": "$1"}, "$1"},
		{"no params", "Hi {{name}}", nil, "Hi {{name}}"},
		{"values are not expanded again", "{{a}} {{b}}", map[string]any{"a": "{{ b }}", "b": "X"}, "{{ b }} X"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Interpolate(tt.content, tt.params))
		})
	}
}

func TestInterpolateIsDeterministic(t *testing.T) {
	params := map[string]any{"a": "{{ b }}", "b": "{{ c }}", "c": "{{ a }}", "d": "D"}
	for i := 0; i < 50; i++ {
		assert.Equal(t, "{{ b }}|{{ c }}|{{ a }}|D", Interpolate("{{a}}|{{b}}|{{c}}|{{d}}", params))
	}
}

func TestReplaceVariables(t *testing.T) {
	c := &models.Content{
		Subject: "Hi {{name}}",
		Text:    "Dear {{name}}, your code is {{ code }}",
		HTML:    "<p>Dear {{ name }}</p>",
	}

	unresolved := ReplaceVariables(c, map[string]any{"name": "Sam"})

	assert.Equal(t, "Hi Sam", c.Subject)
	assert.Equal(t, "Dear Sam, your code is {{ code }}", c.Text)
	assert.Equal(t, "<p>Dear Sam</p>", c.HTML)
	assert.Equal(t, []string{"code"}, unresolved)
}

func TestGetVariableNames(t *testing.T) {
	assert.True(t, HasVariables("{{ a }}"))
	assert.False(t, HasVariables("{ a }"))
	assert.Equal(t, []string{"a", "b"}, GetVariableNames("{{a}} {{ b }} {{a}}"))
}
