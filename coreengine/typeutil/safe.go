// Package typeutil provides comma-ok type assertion helpers for the
// map[string]any payloads that flow through configuration, tool parameters,
// and bus messages. Helpers never panic on unexpected shapes.
package typeutil

// SafeMapStringAny asserts value to map[string]any.
// Returns the map and true on success, nil and false otherwise.
func SafeMapStringAny(value any) (map[string]any, bool) {
	if value == nil {
		return nil, false
	}
	m, ok := value.(map[string]any)
	return m, ok
}

// SafeMapStringAnyDefault asserts value to map[string]any, falling back to
// defaultVal when the assertion fails.
func SafeMapStringAnyDefault(value any, defaultVal map[string]any) map[string]any {
	if m, ok := SafeMapStringAny(value); ok {
		return m
	}
	return defaultVal
}

// SafeStringMap asserts value to map[string]string. A map[string]any holding
// only string values is converted; any non-string value fails the whole
// assertion.
func SafeStringMap(value any) (map[string]string, bool) {
	if value == nil {
		return nil, false
	}
	if m, ok := value.(map[string]string); ok {
		return m, true
	}
	anyMap, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	result := make(map[string]string, len(anyMap))
	for key, item := range anyMap {
		str, ok := item.(string)
		if !ok {
			return nil, false
		}
		result[key] = str
	}
	return result, true
}

// SafeStringMapDefault asserts value to map[string]string, falling back to
// defaultVal.
func SafeStringMapDefault(value any, defaultVal map[string]string) map[string]string {
	if m, ok := SafeStringMap(value); ok {
		return m
	}
	return defaultVal
}

// SafeString asserts value to string.
func SafeString(value any) (string, bool) {
	if value == nil {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}

// SafeStringDefault asserts value to string, falling back to defaultVal.
func SafeStringDefault(value any, defaultVal string) string {
	if s, ok := SafeString(value); ok {
		return s
	}
	return defaultVal
}

// SafeInt asserts value to int. Float and wider integer widths are
// accepted and truncated; JSON decoding hands numbers over as float64.
func SafeInt(value any) (int, bool) {
	if value == nil {
		return 0, false
	}
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case int32:
		return int(v), true
	case float64:
		return int(v), true
	case float32:
		return int(v), true
	default:
		return 0, false
	}
}

// SafeIntDefault asserts value to int, falling back to defaultVal.
func SafeIntDefault(value any, defaultVal int) int {
	if i, ok := SafeInt(value); ok {
		return i
	}
	return defaultVal
}

// SafeFloat64 asserts value to float64. Integer widths are widened.
func SafeFloat64(value any) (float64, bool) {
	if value == nil {
		return 0, false
	}
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	default:
		return 0, false
	}
}

// SafeFloat64Default asserts value to float64, falling back to defaultVal.
func SafeFloat64Default(value any, defaultVal float64) float64 {
	if f, ok := SafeFloat64(value); ok {
		return f
	}
	return defaultVal
}

// SafeBool asserts value to bool.
func SafeBool(value any) (bool, bool) {
	if value == nil {
		return false, false
	}
	b, ok := value.(bool)
	return b, ok
}

// SafeBoolDefault asserts value to bool, falling back to defaultVal.
func SafeBoolDefault(value any, defaultVal bool) bool {
	if b, ok := SafeBool(value); ok {
		return b
	}
	return defaultVal
}

// SafeStringSlice asserts value to []string. A []any holding only strings
// is converted; any non-string element fails the whole assertion.
func SafeStringSlice(value any) ([]string, bool) {
	if value == nil {
		return nil, false
	}
	if s, ok := value.([]string); ok {
		return s, true
	}
	anySlice, ok := value.([]any)
	if !ok {
		return nil, false
	}
	result := make([]string, 0, len(anySlice))
	for _, item := range anySlice {
		str, ok := item.(string)
		if !ok {
			return nil, false
		}
		result = append(result, str)
	}
	return result, true
}

// SafeStringSliceDefault asserts value to []string, falling back to defaultVal.
func SafeStringSliceDefault(value any, defaultVal []string) []string {
	if s, ok := SafeStringSlice(value); ok {
		return s
	}
	return defaultVal
}
