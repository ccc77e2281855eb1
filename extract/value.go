package extract

import (
	"encoding/json"
	"fmt"
)

// Kind classifies an extracted value.
type Kind int

const (
	// KindExtracted is a value captured from the text itself.
	KindExtracted Kind = iota + 1
	// KindDetected is a type-directed stand-in for a property whose name
	// appears in the text.
	KindDetected
	// KindNeedsParsing marks a property whose presence was detected but
	// whose value was not parsed.
	KindNeedsParsing
)

func (k Kind) String() string {
	switch k {
	case KindExtracted:
		return "extracted"
	case KindDetected:
		return "detected"
	case KindNeedsParsing:
		return "needs_parsing"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MarshalText renders the kind name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Wire markers for values that are not real data.
const (
	SentinelNeedsParsing       = "detected_needs_parsing"
	SentinelObjectNeedsParsing = "detected_object_needs_parsing"
	SentinelArrayNeedsParsing  = "detected_array_needs_parsing"
	DetectedString             = "detected_string_value"
	DetectedValue              = "detected_value"
)

// Value is one extraction outcome. Raw is what goes on the wire; Kind
// tells callers whether Raw is real data.
type Value struct {
	Kind Kind
	Raw  any
}

// Extracted wraps a value captured from text.
func Extracted(v any) Value { return Value{Kind: KindExtracted, Raw: v} }

// Detected wraps a presence stand-in.
func Detected(v any) Value { return Value{Kind: KindDetected, Raw: v} }

// NeedsParsing returns the sentinel with the given wire marker.
func NeedsParsing(marker string) Value { return Value{Kind: KindNeedsParsing, Raw: marker} }

// IsSentinel reports whether v stands for "present, value not parsed".
func (v Value) IsSentinel() bool { return v.Kind == KindNeedsParsing }

// IsData reports whether Raw was captured from the text.
func (v Value) IsData() bool { return v.Kind == KindExtracted }

// MarshalJSON emits Raw only.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Raw)
}

func (v Value) String() string {
	return fmt.Sprintf("%v(%v)", v.Kind, v.Raw)
}
