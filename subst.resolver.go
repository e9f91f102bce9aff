package subst

import (
	"context"

	"github.com/itsatony/go-subst/internal"
	"go.uber.org/zap"
)

// Resolver substitutes ${pattern} placeholders until the template stops
// changing. It is immutable after construction and safe for concurrent use.
type Resolver struct {
	defaults   []Definition
	config     *resolverConfig
	matcher    *internal.PatternMatcher
	normalizer *normalizer
	logger     *zap.Logger
}

// New creates a Resolver. defaults is any replacement map accepted by
// NormalizeAll and is applied before the replacements of every call.
func New(defaults any, opts ...Option) (*Resolver, error) {
	config := defaultResolverConfig()
	for _, opt := range opts {
		opt(config)
	}

	logger := config.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	norm := newNormalizer(logger)
	defs, err := norm.all(defaults)
	if err != nil {
		return nil, err
	}

	logger.Debug(LogMsgResolverCreated,
		zap.Int(LogFieldDefinitions, len(defs)),
		zap.Int(LogFieldPasses, config.maxPasses),
	)

	return &Resolver{
		defaults:   defs,
		config:     config,
		matcher:    internal.NewPatternMatcher(config.regexCache, logger),
		normalizer: norm,
		logger:     logger,
	}, nil
}

// MustNew creates a new Resolver and panics if there's an error.
func MustNew(defaults any, opts ...Option) *Resolver {
	r, err := New(defaults, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve is a convenience function that builds a Resolver without defaults
// and resolves template once.
func Resolve(template string, replacements any, opts ...Option) (string, error) {
	r, err := New(nil, opts...)
	if err != nil {
		return "", err
	}
	return r.Resolve(template, replacements)
}

// Defaults returns a copy of the normalized constructor definitions.
func (r *Resolver) Defaults() []Definition {
	out := make([]Definition, len(r.defaults))
	copy(out, r.defaults)
	return out
}

// Resolve substitutes placeholders in template using the constructor
// defaults followed by replacements.
func (r *Resolver) Resolve(template string, replacements any) (string, error) {
	return r.ResolveContext(context.Background(), template, replacements)
}

// ResolvePtr is Resolve for an optional template. A nil template is returned
// as is, without normalizing replacements.
func (r *Resolver) ResolvePtr(template *string, replacements any) (*string, error) {
	if template == nil {
		return nil, nil
	}
	out, err := r.Resolve(*template, replacements)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ResolveContext is Resolve with cancellation checked between passes.
// Errors returned by replacement functions are passed through unchanged.
func (r *Resolver) ResolveContext(ctx context.Context, template string, replacements any) (string, error) {
	defs, err := r.effective(replacements)
	if err != nil {
		return "", err
	}
	if len(defs) == 0 {
		r.logger.Debug(LogMsgResolveNoDefinitions)
		return template, nil
	}

	r.logger.Debug(LogMsgResolveStart, zap.Int(LogFieldDefinitions, len(defs)))

	current := template
	for passes := 1; ; passes++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		next, err := r.pass(current, template, defs)
		if err != nil {
			return "", err
		}
		if next == current {
			r.logger.Debug(LogMsgResolveEnd, zap.Int(LogFieldPasses, passes))
			return next, nil
		}
		if r.config.maxPasses > 0 && passes > r.config.maxPasses {
			return "", NewMaxPassesExceededError(r.config.maxPasses)
		}
		current = next
	}
}

func (r *Resolver) effective(replacements any) ([]Definition, error) {
	extra, err := r.normalizer.all(replacements)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return r.defaults, nil
	}
	defs := make([]Definition, 0, len(r.defaults)+len(extra))
	defs = append(defs, r.defaults...)
	return append(defs, extra...), nil
}

// pass applies every definition once, in order, each acting on the output
// of the previous one.
func (r *Resolver) pass(current, template string, defs []Definition) (string, error) {
	out := current
	for _, def := range defs {
		text, err := r.text(def, template, out)
		if err != nil {
			return "", err
		}
		out = r.matcher.Replace(out, def.Pattern, text)
	}
	return out, nil
}

// text computes the substitution text for one definition. Replacement
// functions are invoked even when the placeholder is absent from partial.
func (r *Resolver) text(def Definition, template, partial string) (string, error) {
	v, err := unwrap(def.Replacement, def.Pattern, template, partial)
	if err != nil {
		r.logger.Debug(LogMsgReplacementFuncFailed,
			zap.String(LogFieldPattern, def.Pattern),
			zap.Error(err),
		)
		return "", err
	}
	if v, err = checkReplacement(def.Pattern, v); err != nil {
		return "", err
	}

	var policy any
	switch v.(type) {
	case UndefinedValue:
		policy = r.config.undefinedReplacement
	case nil:
		policy = r.config.nullReplacement
	default:
		return toText(v), nil
	}

	v, err = unwrap(policy, def.Pattern, template, partial)
	if err != nil {
		return "", err
	}
	if v, err = checkReplacement(def.Pattern, v); err != nil {
		return "", err
	}
	return toText(v), nil
}

// unwrap invokes v while it is a replacement function. There is no bound on
// how many functions may be chained.
func unwrap(v any, pattern, template, partial string) (any, error) {
	for {
		fn, ok := asReplaceFunc(v)
		if !ok {
			return v, nil
		}
		next, err := fn(pattern, template, partial)
		if err != nil {
			return nil, err
		}
		v = next
	}
}
