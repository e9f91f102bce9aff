package internal

import (
	"regexp"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// patternCache memoises compiled placeholder expressions for the lifetime of
// the process. Entries never expire and the janitor is disabled.
var patternCache = gocache.New(gocache.NoExpiration, 0)

// Placeholder returns the literal placeholder text for a pattern.
func Placeholder(pattern string) string {
	return PlaceholderOpen + pattern + PlaceholderClose
}

// PatternMatcher compiles case-insensitive matchers for literal placeholders.
type PatternMatcher struct {
	useCache bool
	logger   *zap.Logger
}

// NewPatternMatcher creates a matcher. When useCache is false every call
// compiles a fresh expression.
func NewPatternMatcher(useCache bool, logger *zap.Logger) *PatternMatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatternMatcher{
		useCache: useCache,
		logger:   logger,
	}
}

// Compile returns an expression matching every case-insensitive occurrence
// of ${pattern}. The pattern text is quoted, it is never a nested expression.
func (m *PatternMatcher) Compile(pattern string) *regexp.Regexp {
	if !m.useCache {
		return compilePlaceholder(pattern)
	}

	if cached, ok := patternCache.Get(pattern); ok {
		if re, ok := cached.(*regexp.Regexp); ok {
			m.logger.Debug(LogMsgPatternCacheHit, zap.String(LogFieldPattern, pattern))
			return re
		}
	}

	re := compilePlaceholder(pattern)
	patternCache.Set(pattern, re, gocache.NoExpiration)
	m.logger.Debug(LogMsgPatternCompiled, zap.String(LogFieldPattern, pattern))
	return re
}

// Replace substitutes every occurrence of ${pattern} in s with the literal text.
func (m *PatternMatcher) Replace(s, pattern, text string) string {
	return m.Compile(pattern).ReplaceAllLiteralString(s, text)
}

// CachedPatternCount reports how many expressions the shared cache holds.
func CachedPatternCount() int {
	return patternCache.ItemCount()
}

func compilePlaceholder(pattern string) *regexp.Regexp {
	return regexp.MustCompile(CaseInsensitiveFlag + regexp.QuoteMeta(Placeholder(pattern)))
}
