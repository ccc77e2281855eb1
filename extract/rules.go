package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/BaSui01/intentflow/schema"
)

// Input is what a Rule sees for one property.
type Input struct {
	Text     string
	Lower    string
	Property schema.Property
}

// NewInput prepares text for the rules.
func NewInput(text string, p schema.Property) Input {
	return Input{Text: text, Lower: strings.ToLower(text), Property: p}
}

// Rule is one named heuristic. Apply returns ok=false when the rule does
// not match, letting later rules run.
type Rule interface {
	Name() string
	Apply(in Input) (Value, bool)
}

// Rule names, as reported in Result.Matches.
const (
	RuleDirectName     = "direct_name"
	RuleTimeWindow     = "time_window"
	RuleLocation       = "location"
	RuleQoS            = "qos"
	RuleQuotedString   = "quoted_string"
	RuleNumericLiteral = "numeric_literal"
)

// DefaultRules returns the built-in rules in priority order.
func DefaultRules() []Rule {
	return []Rule{
		DirectNameRule{},
		TimeWindowRule(),
		LocationRule(),
		QoSRule(),
		QuotedStringRule{},
		NumericLiteralRule{},
	}
}

// =============================================================================
// direct_name
// =============================================================================

// DirectNameRule matches when the lower-cased property name occurs in the
// lower-cased text and emits a type-directed stand-in.
type DirectNameRule struct{}

func (DirectNameRule) Name() string { return RuleDirectName }

func (DirectNameRule) Apply(in Input) (Value, bool) {
	name := strings.ToLower(in.Property.Name)
	if name == "" || !strings.Contains(in.Lower, name) {
		return Value{}, false
	}
	switch in.Property.Type {
	case schema.TypeString:
		return Detected(DetectedString), true
	case schema.TypeInteger:
		return Detected(int64(0)), true
	case schema.TypeNumber:
		return Detected(float64(0)), true
	case schema.TypeObject:
		return NeedsParsing(SentinelObjectNeedsParsing), true
	case schema.TypeArray:
		return NeedsParsing(SentinelArrayNeedsParsing), true
	default:
		return Detected(DetectedValue), true
	}
}

// =============================================================================
// category heuristics
// =============================================================================

// CategoryRule matches when the property name contains one of
// NameKeywords and the text contains one of TextKeywords (or matches
// TextPattern). It always yields the needs-parsing sentinel.
type CategoryRule struct {
	RuleName     string
	NameKeywords []string
	TextKeywords []string
	TextPattern  *regexp.Regexp
}

func (r CategoryRule) Name() string { return r.RuleName }

func (r CategoryRule) Apply(in Input) (Value, bool) {
	if !containsAny(strings.ToLower(in.Property.Name), r.NameKeywords) {
		return Value{}, false
	}
	if (r.TextPattern != nil && r.TextPattern.MatchString(in.Text)) || containsAny(in.Lower, r.TextKeywords) {
		return NeedsParsing(SentinelNeedsParsing), true
	}
	return Value{}, false
}

var isoDate = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// TimeWindowRule covers start/end/duration style properties.
func TimeWindowRule() CategoryRule {
	return CategoryRule{
		RuleName:     RuleTimeWindow,
		NameKeywords: []string{"time", "start", "end", "duration"},
		TextKeywords: []string{"time", "when", "from", "to", "start", "end"},
		TextPattern:  isoDate,
	}
}

// LocationRule covers area and coordinate properties.
func LocationRule() CategoryRule {
	return CategoryRule{
		RuleName:     RuleLocation,
		NameKeywords: []string{"area", "location", "position", "coordinate", "lat", "lon"},
		TextKeywords: []string{"lat", "long", "coordinate", "location", "area", "radius"},
	}
}

// QoSRule covers quality-of-service properties.
func QoSRule() CategoryRule {
	return CategoryRule{
		RuleName:     RuleQoS,
		NameKeywords: []string{"qos", "quality", "throughput", "latency", "bandwidth"},
		TextKeywords: []string{"mbps", "gbps", "latency", "throughput", "bandwidth", "ms", "millisecond"},
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// =============================================================================
// type-directed patterns
// =============================================================================

// separator between a property mention and its value
const valueSep = `["'\s:=]*`

// QuotedStringRule captures `<name> "value"` for string properties.
type QuotedStringRule struct{}

func (QuotedStringRule) Name() string { return RuleQuotedString }

func (QuotedStringRule) Apply(in Input) (Value, bool) {
	if in.Property.Type != schema.TypeString {
		return Value{}, false
	}
	re := mentionPattern(in.Property.Name, `["']([^"']+)["']`)
	if re == nil {
		return Value{}, false
	}
	m := re.FindStringSubmatch(in.Text)
	if m == nil {
		return Value{}, false
	}
	return Extracted(m[1]), true
}

// NumericLiteralRule captures `<name> 42` for integer and number
// properties.
type NumericLiteralRule struct{}

func (NumericLiteralRule) Name() string { return RuleNumericLiteral }

func (NumericLiteralRule) Apply(in Input) (Value, bool) {
	switch in.Property.Type {
	case schema.TypeInteger:
		re := mentionPattern(in.Property.Name, `(\d+)`)
		if re == nil {
			return Value{}, false
		}
		m := re.FindStringSubmatch(in.Text)
		if m == nil {
			return Value{}, false
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return Value{}, false
		}
		return Extracted(n), true
	case schema.TypeNumber:
		re := mentionPattern(in.Property.Name, `(\d+(?:\.\d+)?)`)
		if re == nil {
			return Value{}, false
		}
		m := re.FindStringSubmatch(in.Text)
		if m == nil {
			return Value{}, false
		}
		f, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return Value{}, false
		}
		return Extracted(f), true
	default:
		return Value{}, false
	}
}

// mentionPattern builds a case-insensitive pattern matching any alias of
// name, a separator and then value.
func mentionPattern(name, value string) *regexp.Regexp {
	aliases := Aliases(name)
	if len(aliases) == 0 {
		return nil
	}
	quoted := make([]string, len(aliases))
	for i, a := range aliases {
		quoted[i] = regexp.QuoteMeta(a)
	}
	return regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)` + valueSep + value)
}

// Aliases returns the ways a property name may be written in prose: the
// name itself, then its words joined by space, underscore and hyphen.
// "sliceName" yields sliceName, "slice name", slice_name, slice-name.
func Aliases(name string) []string {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	out := []string{name}
	words := SplitWords(name)
	if len(words) < 2 {
		return out
	}
	seen := map[string]bool{strings.ToLower(name): true}
	for _, sep := range []string{" ", "_", "-"} {
		alias := strings.Join(words, sep)
		if key := strings.ToLower(alias); !seen[key] {
			seen[key] = true
			out = append(out, alias)
		}
	}
	return out
}

// SplitWords splits camelCase, PascalCase, snake_case and kebab-case names
// into lower-case words. Acronyms stay together: "sinkURL" is sink, url.
func SplitWords(name string) []string {
	var (
		words []string
		cur   []rune
	)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(name)
	for i, r := range runes {
		if r == '_' || r == '-' || r == ' ' || r == '.' {
			flush()
			continue
		}
		if i > 0 && len(cur) > 0 && boundary(runes, i) {
			flush()
		}
		cur = append(cur, r)
	}
	flush()
	return words
}

func boundary(runes []rune, i int) bool {
	prev, r := runes[i-1], runes[i]
	switch {
	case unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
		return true
	case unicode.IsUpper(r) && unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
		return true
	case unicode.IsDigit(r) && unicode.IsLetter(prev):
		return true
	}
	return false
}
