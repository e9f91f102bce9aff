package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "${name}", Placeholder("name"))
	assert.Equal(t, "${a.b.0}", Placeholder("a.b.0"))
}

func TestPatternMatcher_Replace(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		pattern  string
		text     string
		expected string
	}{
		{name: "single", input: "Hello ${name}", pattern: "name", text: "Bob", expected: "Hello Bob"},
		{name: "every occurrence", input: "${x}-${x}-${x}", pattern: "x", text: "1", expected: "1-1-1"},
		{name: "case insensitive", input: "${NAME} ${Name}", pattern: "name", text: "Bob", expected: "Bob Bob"},
		{name: "pattern is literal", input: "${a.b} ${aXb}", pattern: "a.b", text: "ok", expected: "ok ${aXb}"},
		{name: "regex metacharacters", input: "${(x)+[y]}", pattern: "(x)+[y]", text: "ok", expected: "ok"},
		{name: "text is literal", input: "${p}", pattern: "p", text: "$1 ${0}", expected: "$1 ${0}"},
		{name: "bare name untouched", input: "name $name {name}", pattern: "name", text: "x", expected: "name $name {name}"},
		{name: "no match", input: "plain", pattern: "p", text: "x", expected: "plain"},
	}

	for _, cached := range []bool{true, false} {
		m := NewPatternMatcher(cached, nil)
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.Equal(t, tt.expected, m.Replace(tt.input, tt.pattern, tt.text))
			})
		}
	}
}

func TestPatternMatcher_Cache(t *testing.T) {
	cached := NewPatternMatcher(true, nil)
	first := cached.Compile("cache.hit")
	second := cached.Compile("cache.hit")
	assert.Same(t, first, second)
	assert.GreaterOrEqual(t, CachedPatternCount(), 1)

	uncached := NewPatternMatcher(false, nil)
	assert.NotSame(t, uncached.Compile("cache.fresh"), uncached.Compile("cache.fresh"))
}
