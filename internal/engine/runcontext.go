package engine

import (
	"fmt"
	"regexp"
)

// RunContext is the key/value store accumulated across steps within one
// run. Keys written by step i are visible to steps i+1..n. One instance is
// owned by one run; it is never shared across runs and needs no locking
// because steps execute sequentially.
type RunContext struct {
	values map[string]any
}

// NewRunContext creates a run context seeded with the caller's initial
// input.
func NewRunContext(initial map[string]any) *RunContext {
	values := make(map[string]any, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &RunContext{values: values}
}

// Get returns the value for a key.
func (rc *RunContext) Get(key string) (any, bool) {
	v, ok := rc.values[key]
	return v, ok
}

// Merge copies the declared keys from a step output into the context.
// Output maps are already filtered to declared keys by the executor, so
// every key is merged.
func (rc *RunContext) Merge(output map[string]any) {
	for k, v := range output {
		rc.values[k] = v
	}
}

// Snapshot returns a copy of the current context for persistence.
func (rc *RunContext) Snapshot() map[string]any {
	snap := make(map[string]any, len(rc.values))
	for k, v := range rc.values {
		snap[k] = v
	}
	return snap
}

// placeholderPattern matches ${key} references inside string params.
var placeholderPattern = regexp.MustCompile(`\$\{([a-zA-Z0-9_.-]+)\}`)

// ResolveParams substitutes ${key} references in the params with context
// values. A string that is exactly one placeholder resolves to the raw
// context value; placeholders embedded in a longer string interpolate the
// value's string form. Returns ErrUnresolvedReference for missing keys.
func (rc *RunContext) ResolveParams(params map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(params))
	for k, v := range params {
		rv, err := rc.resolveValue(v)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", k, err)
		}
		resolved[k] = rv
	}
	return resolved, nil
}

func (rc *RunContext) resolveValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return rc.resolveString(val)
	case map[string]any:
		return rc.ResolveParams(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			rv, err := rc.resolveValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

func (rc *RunContext) resolveString(s string) (any, error) {
	// Whole-string placeholder keeps the raw value type.
	if m := placeholderPattern.FindStringSubmatch(s); m != nil && m[0] == s {
		v, ok := rc.Get(m[1])
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnresolvedReference, m[1])
		}
		return v, nil
	}

	var missing string
	out := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		v, ok := rc.Get(key)
		if !ok {
			missing = key
			return match
		}
		return fmt.Sprintf("%v", v)
	})
	if missing != "" {
		return nil, fmt.Errorf("%w: %q", ErrUnresolvedReference, missing)
	}
	return out, nil
}

// References extracts all ${key} reference names from a params map, for the
// static validation pass.
func References(params map[string]any) []string {
	var keys []string
	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case string:
			for _, m := range placeholderPattern.FindAllStringSubmatch(val, -1) {
				keys = append(keys, m[1])
			}
		case map[string]any:
			for _, item := range val {
				walk(item)
			}
		case []any:
			for _, item := range val {
				walk(item)
			}
		}
	}
	walk(params)
	return keys
}
