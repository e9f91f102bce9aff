package subst

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	t.Run("without defaults", func(t *testing.T) {
		r, err := New(nil)
		require.NoError(t, err)
		require.NotNil(t, r)
		assert.Empty(t, r.Defaults())
	})

	t.Run("normalizes defaults", func(t *testing.T) {
		r, err := New(NewMap(P("b", "2"), P("a", "1")))
		require.NoError(t, err)
		assert.Equal(t, []Definition{D("b", "2"), D("a", "1")}, r.Defaults())
	})

	t.Run("rejects invalid defaults", func(t *testing.T) {
		_, err := New([]any{"not a definition"})
		require.Error(t, err)
		assert.True(t, IsInvalidPatternError(err))
	})

	t.Run("MustNew panics on invalid defaults", func(t *testing.T) {
		assert.Panics(t, func() {
			MustNew([]Definition{{Pattern: "", Replacement: "x"}})
		})
	})

	t.Run("Defaults returns a copy", func(t *testing.T) {
		r := MustNew(map[string]any{"a": "1"})
		defs := r.Defaults()
		defs[0].Replacement = "changed"
		assert.Equal(t, "1", r.Defaults()[0].Replacement)
	})
}

func TestResolver_ResolvePtr(t *testing.T) {
	r := MustNew(map[string]any{"x": "y"})

	t.Run("nil template is returned unchanged", func(t *testing.T) {
		out, err := r.ResolvePtr(nil, map[string]any{"a": "b"})
		require.NoError(t, err)
		assert.Nil(t, out)
	})

	t.Run("nil template skips normalization", func(t *testing.T) {
		out, err := r.ResolvePtr(nil, []any{"invalid"})
		require.NoError(t, err)
		assert.Nil(t, out)
	})

	t.Run("non-nil template is resolved", func(t *testing.T) {
		tmpl := "${x}"
		out, err := r.ResolvePtr(&tmpl, nil)
		require.NoError(t, err)
		require.NotNil(t, out)
		assert.Equal(t, "y", *out)
	})
}

func TestResolver_Resolve(t *testing.T) {
	tests := []struct {
		name         string
		template     string
		replacements any
		opts         []Option
		expected     string
	}{
		{
			name:         "no placeholders",
			template:     "plain text",
			replacements: map[string]any{"a": "b"},
			expected:     "plain text",
		},
		{
			name:         "empty template",
			template:     "",
			replacements: map[string]any{"a": "b"},
			expected:     "",
		},
		{
			name:         "no replacements",
			template:     "${a}",
			replacements: nil,
			expected:     "${a}",
		},
		{
			name:         "literal zero",
			template:     "${r}",
			replacements: []Definition{D("r", 0)},
			expected:     "0",
		},
		{
			name:         "literal false",
			template:     "${r}",
			replacements: []Definition{D("r", false)},
			expected:     "false",
		},
		{
			name:         "float",
			template:     "${r}",
			replacements: []Definition{D("r", 1.5)},
			expected:     "1.5",
		},
		{
			name:     "chained",
			template: "this is ${resolverOne}",
			replacements: map[string]any{
				"resolverOne": "${resolverTwo}",
				"resolverTwo": "resolved",
			},
			expected: "this is resolved",
		},
		{
			name:     "chained in reverse order",
			template: "this is ${resolverOne}",
			replacements: NewMap(
				P("resolverTwo", "resolved"),
				P("resolverOne", "${resolverTwo}"),
			),
			expected: "this is resolved",
		},
		{
			name:         "embedded",
			template:     "this is ${a${n}} embedded resolver",
			replacements: map[string]any{"an": "an", "n": "n"},
			expected:     "this is an embedded resolver",
		},
		{
			name:         "case insensitive",
			template:     "${NAME} ${Name} ${name}",
			replacements: map[string]any{"name": "x"},
			expected:     "x x x",
		},
		{
			name:         "every occurrence",
			template:     "${a}-${a}-${a}",
			replacements: map[string]any{"a": "1"},
			expected:     "1-1-1",
		},
		{
			name:         "pattern is literal text",
			template:     "${a.b(c)*}",
			replacements: NewMap(P("a.b(c)*", "ok")),
			expected:     "ok",
		},
		{
			name:         "replacement is literal text",
			template:     "${a}",
			replacements: map[string]any{"a": "$1 ${}"},
			expected:     "$1 ${}",
		},
		{
			name:         "undefined uses identity by default",
			template:     "${x}",
			replacements: map[string]any{"x": Undefined},
			expected:     "${x}",
		},
		{
			name:         "undefined override",
			template:     "with ${x}",
			replacements: map[string]any{"x": Undefined},
			opts:         []Option{WithUndefinedReplacement("REPL")},
			expected:     "with REPL",
		},
		{
			name:         "null uses identity by default",
			template:     "${x}",
			replacements: map[string]any{"x": nil},
			expected:     "${x}",
		},
		{
			name:         "null override",
			template:     "with ${x}",
			replacements: map[string]any{"x": nil},
			opts:         []Option{WithNullReplacement("NULL")},
			expected:     "with NULL",
		},
		{
			name:         "null policy function receives pattern",
			template:     "${x}",
			replacements: map[string]any{"x": nil},
			opts: []Option{WithNullReplacement(func(p string) string {
				return "<" + p + ">"
			})},
			expected: "<x>",
		},
		{
			name:         "policy functions are unwrapped",
			template:     "${x}",
			replacements: map[string]any{"x": Undefined},
			opts: []Option{WithUndefinedReplacement(func(p string) any {
				return func(p string) string { return "[" + p + "]" }
			})},
			expected: "[x]",
		},
		{
			name:         "policy yielding nil substitutes empty text",
			template:     "a${x}b",
			replacements: map[string]any{"x": nil},
			opts:         []Option{WithNullReplacement(func(string) any { return nil })},
			expected:     "ab",
		},
		{
			name:         "function replacement",
			template:     "${a}",
			replacements: []Definition{D("a", func(p string) string { return p })},
			expected:     "a",
		},
		{
			name:         "function returning a function",
			template:     "${a}",
			replacements: []Definition{D("a", func() any { return func() string { return "deep" } })},
			expected:     "deep",
		},
		{
			name:         "function returning nil uses null policy",
			template:     "${a}",
			replacements: []Definition{D("a", func() any { return nil })},
			opts:         []Option{WithNullReplacement("none")},
			expected:     "none",
		},
		{
			name:         "function returning Undefined uses undefined policy",
			template:     "${a}",
			replacements: []Definition{D("a", func() any { return Undefined })},
			expected:     "${a}",
		},
		{
			name:     "nested object",
			template: "Welcome, ${person.name.first}!",
			replacements: map[string]any{
				"person": map[string]any{"name": map[string]any{"first": "Bruce"}},
			},
			expected: "Welcome, Bruce!",
		},
		{
			name:         "nested slice",
			template:     "${list.0} and ${list.1}",
			replacements: map[string]any{"list": []string{"x", "y"}},
			expected:     "x and y",
		},
		{
			name:         "classic map entries",
			template:     "${p}",
			replacements: []any{map[string]any{"pattern": "p", "replacement": "classic"}},
			expected:     "classic",
		},
		{
			name:         "regex cache disabled",
			template:     "${a}",
			replacements: map[string]any{"a": "b"},
			opts:         []Option{WithRegexCache(false)},
			expected:     "b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(nil, tt.opts...)
			require.NoError(t, err)

			out, err := r.Resolve(tt.template, tt.replacements)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestResolver_Resolve_Struct(t *testing.T) {
	type name struct {
		First string `mapstructure:"first"`
		Last  string `mapstructure:"last"`
	}
	type person struct {
		Name name `mapstructure:"name"`
	}

	out, err := Resolve("${person.name.first} ${person.name.last}", map[string]any{
		"person": person{Name: name{First: "Bruce", Last: "Wayne"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bruce Wayne", out)
}

func TestResolver_Resolve_DefaultsFirst(t *testing.T) {
	r := MustNew(map[string]any{"a": "default", "b": "kept"})

	out, err := r.Resolve("${a} ${b} ${c}", map[string]any{"a": "call", "c": "added"})
	require.NoError(t, err)
	assert.Equal(t, "default kept added", out)

	out, err = r.Resolve("${a}", nil)
	require.NoError(t, err)
	assert.Equal(t, "default", out)
}

func TestResolver_Resolve_FunctionArguments(t *testing.T) {
	var (
		calls      int
		gotP       string
		gotTmpl    string
		gotPartial string
	)
	record := func(p, tmpl, partial string) (any, error) {
		if calls == 0 {
			gotP, gotTmpl, gotPartial = p, tmpl, partial
		}
		calls++
		return "B", nil
	}

	out, err := Resolve("${a} ${b}", []Definition{D("a", "A"), D("b", record)})
	require.NoError(t, err)
	assert.Equal(t, "A B", out)

	assert.Equal(t, "b", gotP)
	assert.Equal(t, "${a} ${b}", gotTmpl)
	assert.Equal(t, "A ${b}", gotPartial)
	assert.Equal(t, 2, calls, "invoked once per pass")
}

func TestResolver_Resolve_FunctionError(t *testing.T) {
	errBoom := errors.New("boom")

	t.Run("error is returned unwrapped", func(t *testing.T) {
		out, err := Resolve("${x}", []Definition{D("x", func() (any, error) { return nil, errBoom })})
		require.Error(t, err)
		assert.Same(t, errBoom, err)
		assert.Empty(t, out)
	})

	t.Run("policy function error is returned", func(t *testing.T) {
		policy := func(string, string, string) (any, error) { return nil, errBoom }
		_, err := Resolve("${x}", map[string]any{"x": nil}, WithNullReplacement(policy))
		require.ErrorIs(t, err, errBoom)
	})
}

func TestResolver_Resolve_PatternAndReplacementKeys(t *testing.T) {
	const template = "${pattern} and ${replacement}"

	out, err := Resolve(template, map[string]any{"pattern": "P", "replacement": "R"})
	require.NoError(t, err)
	assert.Equal(t, "P and R", out)

	out, err = Resolve(template, NewMap(P("pattern", "P"), P("replacement", "R")))
	require.NoError(t, err)
	assert.Equal(t, "P and R", out)

	r := MustNew(map[string]any{"pattern": "P", "replacement": "R"})
	assert.Equal(t, []Definition{D("pattern", "P"), D("replacement", "R")}, r.Defaults())
}

type upperFunc func(string) string

type counterFunc func() int

func TestResolver_Resolve_FunctionShapes(t *testing.T) {
	t.Run("named function types are converted", func(t *testing.T) {
		upper := upperFunc(func(pattern string) string { return pattern + "!" })

		out, err := Resolve("${a}", map[string]any{"a": upper})
		require.NoError(t, err)
		assert.Equal(t, "a!", out)
		assert.True(t, IsReplaceFunc(upper))
	})

	t.Run("unsupported signature is rejected", func(t *testing.T) {
		out, err := Resolve("${a}", map[string]any{"a": func(string) int { return 7 }})
		require.Error(t, err)
		assert.Empty(t, out)
		assert.True(t, IsUnsupportedReplacementError(err))
		assert.Contains(t, err.Error(), "func(string) int")
		assert.False(t, IsReplaceFunc(func(string) int { return 7 }))
	})

	t.Run("unsupported named type is rejected", func(t *testing.T) {
		_, err := Resolve("${n}", map[string]any{"n": counterFunc(func() int { return 1 })})
		require.Error(t, err)
		assert.True(t, IsUnsupportedReplacementError(err))
	})

	t.Run("unsupported function returned by a function", func(t *testing.T) {
		_, err := Resolve("${a}", map[string]any{
			"a": func() any { return func(int) int { return 0 } },
		})
		require.Error(t, err)
		assert.True(t, IsUnsupportedReplacementError(err))
	})

	t.Run("unsupported policy function", func(t *testing.T) {
		_, err := Resolve("${a}", map[string]any{"a": nil},
			WithNullReplacement(func(int) string { return "" }))
		require.Error(t, err)
		assert.True(t, IsUnsupportedReplacementError(err))
	})

	t.Run("nil function is the null case", func(t *testing.T) {
		var fn func() string
		out, err := Resolve("[${a}]", map[string]any{"a": fn}, WithNullReplacement("null"))
		require.NoError(t, err)
		assert.Equal(t, "[null]", out)
	})
}

func TestResolver_Resolve_MaxPasses(t *testing.T) {
	growing := map[string]any{"a": "x${a}"}

	t.Run("non-converging template fails when bounded", func(t *testing.T) {
		_, err := Resolve("${a}", growing, WithMaxPasses(5))
		require.Error(t, err)
		assert.True(t, IsMaxPassesExceededError(err))
		assert.Contains(t, err.Error(), ErrMsgMaxPassesExceeded)
	})

	t.Run("converging template succeeds within bound", func(t *testing.T) {
		out, err := Resolve("this is ${one}", NewMap(P("one", "${two}"), P("two", "done")), WithMaxPasses(2))
		require.NoError(t, err)
		assert.Equal(t, "this is done", out)
	})

	t.Run("single hop fits a bound of one", func(t *testing.T) {
		out, err := Resolve("${a}", map[string]any{"a": "x"}, WithMaxPasses(1))
		require.NoError(t, err)
		assert.Equal(t, "x", out)
	})

	t.Run("chain of n hops needs a bound of n", func(t *testing.T) {
		// applied in reverse so every pass resolves exactly one hop
		chain := NewMap(
			P("c", "done"),
			P("b", "${c}"),
			P("a", "${b}"),
		)

		out, err := Resolve("${a}", chain, WithMaxPasses(3))
		require.NoError(t, err)
		assert.Equal(t, "done", out)

		_, err = Resolve("${a}", chain, WithMaxPasses(2))
		require.Error(t, err)
		assert.True(t, IsMaxPassesExceededError(err))
	})

	t.Run("negative bound is ignored", func(t *testing.T) {
		out, err := Resolve("${a}", map[string]any{"a": "b"}, WithMaxPasses(-1))
		require.NoError(t, err)
		assert.Equal(t, "b", out)
	})
}

func TestResolver_ResolveContext(t *testing.T) {
	r := MustNew(map[string]any{"a": "b"})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := r.ResolveContext(ctx, "${a}", nil)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("stops a non-converging resolve", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		passes := 0
		grow := func(string, string, string) (any, error) {
			passes++
			if passes == 10 {
				cancel()
			}
			return "x${g}", nil
		}

		_, err := r.ResolveContext(ctx, "${g}", []Definition{D("g", grow)})
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 10, passes)
	})
}

func TestResolver_ConcurrentUse(t *testing.T) {
	r := MustNew(map[string]any{"greeting": "Hello"})

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := fmt.Sprintf("Hello, user%d!", i)
			got, err := r.Resolve("${greeting}, ${name}!", map[string]any{"name": fmt.Sprintf("user%d", i)})
			if err != nil {
				errs <- err
				return
			}
			if got != want {
				errs <- fmt.Errorf("got %q, want %q", got, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestResolver_Logging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	r := MustNew(nil, WithLogger(logger))
	out, err := r.Resolve("${x}", map[string]any{"x": map[string]any{"pattern": "x"}})
	require.NoError(t, err)
	assert.Equal(t, "${x}", out)

	warnings := logs.FilterMessage(LogMsgIncompleteClassic).All()
	require.Len(t, warnings, 1)
	assert.Equal(t, zapcore.WarnLevel, warnings[0].Level)
	assert.Equal(t, "x", warnings[0].ContextMap()[LogFieldPattern])

	assert.NotEmpty(t, logs.FilterMessage(LogMsgResolveEnd).All())
}
