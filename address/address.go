package address

import (
	"math"
	"net/url"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/timzifer/cswui/options"
)

// DefaultScheme is used when neither the field nor the process configures a protocol.
const DefaultScheme = "epics"

// Address identifies a device subscription.
type Address struct {
	Scheme string
	Path   string
	Query  map[string]string
}

// Build derives the subscription address of a validated option set. The
// scheme falls back to defaultScheme, then to DefaultScheme.
func Build(set options.Set, defaultScheme string) Address {
	scheme := strings.TrimSpace(defaultScheme)
	if scheme == "" {
		scheme = DefaultScheme
	}
	if protocol, ok := set.Protocol(); ok {
		scheme = protocol
	}
	query := make(map[string]string)
	for name, value := range set.Query() {
		if value.IsNumber() {
			query[name] = FormatNumber(value.Number)
			continue
		}
		query[name] = value.Text
	}
	return Address{Scheme: scheme, Path: set.Device(), Query: query}
}

// String returns the canonical form used as the multiplexing topic. Query
// keys are sorted so equal option sets always yield equal strings.
func (a Address) String() string {
	var b strings.Builder
	b.WriteString(a.Scheme)
	b.WriteString("://")
	b.WriteString(url.PathEscape(a.Path))
	if len(a.Query) == 0 {
		return b.String()
	}
	keys := make([]string, 0, len(a.Query))
	for k := range a.Query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(escape(k))
		b.WriteByte('=')
		b.WriteString(escape(a.Query[k]))
	}
	return b.String()
}

// Equal reports whether both addresses share a canonical form.
func (a Address) Equal(other Address) bool {
	return a.String() == other.String()
}

// FormatNumber renders a number in its shortest exact decimal form.
func FormatNumber(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case math.IsNaN(v):
		return "NaN"
	}
	return decimal.NewFromFloat(v).String()
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
