package markup

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Anchor classes recognised by Scan.
const (
	ValueFieldClass  = "csw-readonly-field"
	SeriesFieldClass = "csw-strip-chart"
)

// Kind is the widget type an anchor asks for.
type Kind string

const (
	KindValue  Kind = "value"
	KindSeries Kind = "series"
)

// Anchor is a container element that becomes a field.
type Anchor struct {
	Node *html.Node
	Kind Kind
}

// Scan finds every field anchor in doc. Series anchors come first, then
// value anchors, each group in document order. Options of an anchor are read
// with Options when its field is built.
func Scan(doc *html.Node) []Anchor {
	var anchors []Anchor
	for _, n := range FindAll(doc, ByClass(SeriesFieldClass)) {
		anchors = append(anchors, Anchor{Node: n, Kind: KindSeries})
	}
	for _, n := range FindAll(doc, ByClass(ValueFieldClass)) {
		anchors = append(anchors, Anchor{Node: n, Kind: KindValue})
	}
	return anchors
}

// Options collects the raw option map of an anchor from its descendant
// <div name="..."> elements. Names are lower-cased and a later element wins.
func Options(anchor *html.Node) map[string]string {
	opts := make(map[string]string)
	for _, n := range FindAll(anchor, ByTagAttr(atom.Div, "name")) {
		name, _ := Attr(n, "name")
		opts[strings.ToLower(name)] = Text(n)
	}
	return opts
}
