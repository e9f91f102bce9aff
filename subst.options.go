package subst

import (
	"go.uber.org/zap"
)

// Option is a functional option for configuring a Resolver.
type Option func(*resolverConfig)

// resolverConfig holds the internal configuration for a Resolver.
type resolverConfig struct {
	nullReplacement      any
	undefinedReplacement any
	maxPasses            int
	regexCache           bool
	logger               *zap.Logger
}

// defaultResolverConfig returns the default resolver configuration.
func defaultResolverConfig() *resolverConfig {
	return &resolverConfig{
		nullReplacement:      IdentityReplacement,
		undefinedReplacement: IdentityReplacement,
		maxPasses:            DefaultMaxPasses,
		regexCache:           DefaultRegexCache,
		logger:               nil,
	}
}

// WithNullReplacement sets the value substituted when a replacement is nil.
// A function value is called with the pattern and unwrapped until it yields
// a non-function.
// Default: IdentityReplacement
func WithNullReplacement(v any) Option {
	return func(c *resolverConfig) {
		c.nullReplacement = v
	}
}

// WithUndefinedReplacement sets the value substituted when a replacement is
// Undefined. Function values are handled as in WithNullReplacement.
// Default: IdentityReplacement
func WithUndefinedReplacement(v any) Option {
	return func(c *resolverConfig) {
		c.undefinedReplacement = v
	}
}

// WithMaxPasses bounds the number of substitution passes that change the
// template. The final pass that finds nothing left to change is not counted,
// so a chain of n hops resolves with WithMaxPasses(n). A resolve that would
// need more fails with a max passes error. Use 0 for no bound.
// Default: 0
func WithMaxPasses(n int) Option {
	return func(c *resolverConfig) {
		if n >= 0 {
			c.maxPasses = n
		}
	}
}

// WithRegexCache toggles the process-wide cache of compiled placeholder
// expressions.
// Default: true
func WithRegexCache(enabled bool) Option {
	return func(c *resolverConfig) {
		c.regexCache = enabled
	}
}

// WithLogger sets the logger for the resolver.
// Default: nil (no logging)
func WithLogger(logger *zap.Logger) Option {
	return func(c *resolverConfig) {
		c.logger = logger
	}
}
