package subst

import (
	"github.com/itsatony/go-subst/internal"
	"go.uber.org/zap"
)

// Definition is a canonical pattern/replacement pair. Pattern is the bare
// identifier found inside ${...}; Replacement is a literal, nil, Undefined
// or a function (see ReplaceFunc).
type Definition struct {
	Pattern     string `json:"pattern" yaml:"pattern"`
	Replacement any    `json:"replacement" yaml:"replacement"`
}

// D builds a Definition.
func D(pattern string, replacement any) Definition {
	return Definition{Pattern: pattern, Replacement: replacement}
}

// entryKind is the shape of one raw replacement entry.
type entryKind int

const (
	// entryShortcut is a plain value keyed by its pattern.
	entryShortcut entryKind = iota
	// entryClassic carries its own pattern and replacement.
	entryClassic
	// entryIncomplete has a pattern key but no replacement key.
	entryIncomplete
)

// classify is the only place that inspects the shape of a raw entry.
func classify(v any) (kind entryKind, pattern any, replacement any) {
	switch e := v.(type) {
	case Definition:
		return entryClassic, e.Pattern, e.Replacement
	case *Definition:
		if e == nil {
			return entryShortcut, nil, nil
		}
		return entryClassic, e.Pattern, e.Replacement
	case map[string]any:
		p, hasPattern := e[KeyPattern]
		r, hasReplacement := e[KeyReplacement]
		return classicKind(hasPattern, hasReplacement), p, r
	case map[string]string:
		p, hasPattern := e[KeyPattern]
		r, hasReplacement := e[KeyReplacement]
		return classicKind(hasPattern, hasReplacement), p, r
	case *Map:
		if e == nil {
			return entryShortcut, nil, nil
		}
		p, hasPattern := e.Get(KeyPattern)
		r, hasReplacement := e.Get(KeyReplacement)
		return classicKind(hasPattern, hasReplacement), p, r
	default:
		return entryShortcut, nil, nil
	}
}

func classicKind(hasPattern, hasReplacement bool) entryKind {
	switch {
	case hasPattern && hasReplacement:
		return entryClassic
	case hasPattern:
		return entryIncomplete
	default:
		return entryShortcut
	}
}

// normalizer turns raw replacement maps into canonical definitions.
type normalizer struct {
	flattener *internal.Flattener
	logger    *zap.Logger
}

func newNormalizer(logger *zap.Logger) *normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &normalizer{
		flattener: internal.NewFlattener(nil, logger),
		logger:    logger,
	}
}

var defaultNormalizer = newNormalizer(nil)

// NormalizeOne normalizes a single entry. A classic definition as the first
// argument is rebuilt from its own pattern and replacement; otherwise the
// first argument is the pattern and the second the replacement. Map, slice
// and struct replacements are flattened into one definition per leaf, with
// keys joined by ".". Functions met while flattening are dropped.
func NormalizeOne(patternOrDefinition any, replacement any) ([]Definition, error) {
	return defaultNormalizer.one(patternOrDefinition, replacement)
}

// NormalizeAll normalizes a whole replacement map: an ordered *Map, a Go map
// (sorted key order), a struct, or a slice of classic definitions. Every
// entry of a map is normalized on its own, even when the map's keys are
// "pattern" and "replacement". Entries are concatenated in iteration order.
// nil input yields an empty list.
func NormalizeAll(definitions any) ([]Definition, error) {
	return defaultNormalizer.all(definitions)
}

func (n *normalizer) one(patternOrDefinition any, replacement any) ([]Definition, error) {
	if kind, p, r := classify(patternOrDefinition); kind == entryClassic {
		return n.build(p, r)
	}
	return n.build(patternOrDefinition, replacement)
}

func (n *normalizer) build(pattern any, replacement any) ([]Definition, error) {
	s, ok := pattern.(string)
	if !ok || s == "" {
		return nil, NewInvalidPatternError(pattern)
	}

	if !n.flattener.IsComposite(replacement) {
		return []Definition{{Pattern: s, Replacement: replacement}}, nil
	}

	leaves := n.flattener.Flatten(s, replacement)
	defs := make([]Definition, 0, len(leaves))
	for _, leaf := range leaves {
		defs = append(defs, Definition{Pattern: leaf.Path, Replacement: leaf.Value})
	}
	return defs, nil
}

func (n *normalizer) all(definitions any) ([]Definition, error) {
	switch d := definitions.(type) {
	case nil, UndefinedValue:
		return nil, nil
	case []Definition:
		defs := make([]Definition, 0, len(d))
		for _, def := range d {
			built, err := n.build(def.Pattern, def.Replacement)
			if err != nil {
				return nil, err
			}
			defs = append(defs, built...)
		}
		return defs, nil
	case Definition, *Definition:
		return n.one(d, nil)
	}

	if !n.flattener.IsComposite(definitions) {
		return nil, NewInvalidPatternError(definitions)
	}

	var defs []Definition
	err := n.flattener.Each(definitions, func(key any, value any) error {
		built, err := n.entry(key, value)
		if err != nil {
			return err
		}
		defs = append(defs, built...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return defs, nil
}

func (n *normalizer) entry(key any, value any) ([]Definition, error) {
	kind, p, r := classify(value)
	switch kind {
	case entryClassic:
		return n.build(p, r)
	case entryIncomplete:
		name, ok := key.(string)
		if !ok || name == "" {
			return nil, NewInvalidPatternError(key)
		}
		n.logger.Warn(LogMsgIncompleteClassic, zap.String(LogFieldPattern, name))
		return []Definition{{Pattern: name, Replacement: Undefined}}, nil
	default:
		return n.build(key, value)
	}
}
