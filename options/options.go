package options

import (
	"fmt"
	"html"
	"sort"
	"strings"
)

// Recognised option names. Markup names are matched case-insensitively.
const (
	Device    = "device"
	Protocol  = "protocol"
	Rate      = "rate"
	RateLimit = "ratelimit"
	Scale     = "scale"
	Offset    = "offset"
	LowEdge   = "lowedge"
	HighEdge  = "highedge"
	Threshold = "threshold"
	Name      = "name"
	Units     = "units"
	Precision = "precision"
	Buffer    = "buffer"
)

// Rule identifies the constraint an option violated.
type Rule string

const (
	// RuleRequired is reported when a mandatory option is missing.
	RuleRequired Rule = "required"
	// RuleNumeric is reported when a value does not convert to a number.
	RuleNumeric Rule = "numeric"
	// RulePositive is reported when a numeric value is not greater than zero.
	RulePositive Rule = "positive"
)

// ValidationError describes the first option that failed validation.
type ValidationError struct {
	Option string
	Rule   Rule
}

func (e *ValidationError) Error() string {
	switch e.Rule {
	case RuleRequired:
		return fmt.Sprintf("The %q option is required.", e.Option)
	case RulePositive:
		return fmt.Sprintf("The %q option must have value > 0.", e.Option)
	default:
		return fmt.Sprintf("The %q option must have a numeric value.", e.Option)
	}
}

type kind int

const (
	kindText kind = iota
	kindNumber
	kindPositive
)

type check struct {
	name string
	kind kind
}

// checks lists the query options in validation order. The first violation wins.
var checks = []check{
	{Rate, kindPositive},
	{RateLimit, kindPositive},
	{Scale, kindNumber},
	{Offset, kindNumber},
	{LowEdge, kindNumber},
	{HighEdge, kindNumber},
	{Threshold, kindNumber},
	{Name, kindText},
	{Units, kindText},
	{Precision, kindPositive},
	{Buffer, kindPositive},
}

// Value holds a validated option value.
type Value struct {
	Text    string
	Number  float64
	numeric bool
}

// IsNumber reports whether the value was validated as a number.
func (v Value) IsNumber() bool {
	return v.numeric
}

// Set is a validated option set keyed by lower-cased option name.
type Set struct {
	device   string
	protocol string
	query    map[string]Value
}

// Parse validates raw markup options. Keys are lower-cased before lookup; when
// two keys collapse to the same name the one that sorts last wins so parsing
// stays deterministic.
func Parse(raw map[string]string) (Set, error) {
	normalized := normalize(raw)

	device := strings.TrimSpace(normalized[Device])
	if device == "" {
		return Set{}, &ValidationError{Option: Device, Rule: RuleRequired}
	}
	set := Set{
		device:   device,
		protocol: strings.TrimSpace(normalized[Protocol]),
		query:    make(map[string]Value),
	}

	for _, c := range checks {
		text, ok := normalized[c.name]
		if !ok {
			continue
		}
		if c.name == RateLimit {
			if _, hasRate := set.query[Rate]; hasRate {
				continue
			}
		}
		if c.kind == kindText {
			set.query[c.name] = Value{Text: text}
			continue
		}
		number, ok := ToNumber(text)
		if !ok {
			return Set{}, &ValidationError{Option: c.name, Rule: RuleNumeric}
		}
		if c.kind == kindPositive && !(number > 0) {
			return Set{}, &ValidationError{Option: c.name, Rule: RulePositive}
		}
		set.query[c.name] = Value{Text: text, Number: number, numeric: true}
	}
	return set, nil
}

func normalize(raw map[string]string) map[string]string {
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	normalized := make(map[string]string, len(raw))
	for _, key := range keys {
		name := strings.ToLower(strings.TrimSpace(key))
		if name == "" {
			continue
		}
		normalized[name] = raw[key]
	}
	return normalized
}

// Device returns the subscription path.
func (s Set) Device() string {
	return s.device
}

// Protocol returns the configured scheme override.
func (s Set) Protocol() (string, bool) {
	return s.protocol, s.protocol != ""
}

// Number returns a validated numeric option.
func (s Set) Number(name string) (float64, bool) {
	v, ok := s.query[name]
	if !ok || !v.numeric {
		return 0, false
	}
	return v.Number, true
}

// Text returns a string option.
func (s Set) Text(name string) (string, bool) {
	v, ok := s.query[name]
	if !ok || v.numeric {
		return "", false
	}
	return v.Text, true
}

// Query returns a copy of the options that become subscription query parameters.
func (s Set) Query() map[string]Value {
	out := make(map[string]Value, len(s.query))
	for k, v := range s.query {
		out[k] = v
	}
	return out
}

// ErrorHTML renders err as the inline error shown in place of a field.
func ErrorHTML(err error) string {
	return `<span style="color:red;">` + html.EscapeString(err.Error()) + `</span>`
}
