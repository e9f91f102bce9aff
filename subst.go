// Package subst resolves ${pattern} placeholders in strings.
//
// A Resolver holds default replacement definitions and substitutes them,
// together with per-call replacements, until the string stops changing:
//
//	r := subst.MustNew(map[string]any{"greeting": "Hello"})
//	out, err := r.Resolve("${greeting}, ${user.name}!", map[string]any{
//	    "user": map[string]any{"name": "Alice"},
//	})
//	// out: "Hello, Alice!"
//
// # Replacement Maps
//
// Replacements are given in shortcut notation (a map from pattern to value)
// or classic notation (a slice of Definition). Nested maps, slices and
// structs are flattened into dotted patterns. Use *Map (NewMap) when the
// order of application matters; plain Go maps are applied in sorted key
// order.
//
// Replacement values may be literals, nil, Undefined or functions:
//
//	r.Resolve("${now}", subst.NewMap(
//	    subst.P("now", func(pattern string) string { return time.Now().Format(time.Kitchen) }),
//	))
//
// A nil replacement uses the null policy and Undefined uses the undefined
// policy. Both default to IdentityReplacement, which leaves the placeholder
// in place.
//
// # Fixed Point
//
// Passes repeat until one pass leaves the string unchanged, so chained and
// embedded placeholders resolve:
//
//	subst.Resolve("this is ${a${n}}", map[string]any{"an": "an", "n": "n"})
//	// "this is an"
//
// A replacement that re-introduces its own placeholder never converges.
// WithMaxPasses bounds the loop.
//
// # Templates
//
// TemplateManager stores named templates in a TemplateStorage (memory,
// filesystem, sqlite or postgres) and processes them with the manager's
// defaults, the template's defaults and per-call replacements:
//
//	tm := subst.MustNewTemplateManager(subst.WithDefaultReplacements(map[string]any{"site": "example.org"}))
//	_, _ = tm.Add(ctx, "footer", "(c) ${site} ${year}")
//	t, _ := tm.Get(ctx, "footer")
//	out, _ := t.Process(ctx, map[string]any{"year": 2024})
package subst
