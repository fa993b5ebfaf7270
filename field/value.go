package field

import (
	"golang.org/x/net/html"

	"github.com/timzifer/cswui/markup"
	"github.com/timzifer/cswui/options"
)

const valueTemplate = `<div>` +
	`<span class="csw-status"></span>` +
	`<span>&nbsp;</span>` +
	`<span class="csw-value"></span>` +
	`<span>&nbsp;</span>` +
	`<span class="csw-units"></span>` +
	`</div>`

// Placeholder is shown when a payload carries nothing displayable.
const Placeholder = "<VALUE>"

// Value shows the latest reading of a device with its units.
type Value struct {
	value *html.Node
	units *html.Node

	precision    float64
	hasPrecision bool
	last         string
}

// NewValue returns the kind for .csw-readonly-field anchors.
func NewValue() *Value {
	return &Value{}
}

// Template implements Kind.
func (v *Value) Template() string {
	return valueTemplate
}

// Bind implements Kind.
func (v *Value) Bind(f *Field) error {
	v.value = markup.FindFirst(f.Anchor(), markup.ByClass("csw-value"))
	v.units = markup.FindFirst(f.Anchor(), markup.ByClass("csw-units"))
	if units, ok := f.Options().Text(options.Units); ok && units != "" && v.units != nil {
		markup.SetText(v.units, units)
	}
	v.precision, v.hasPrecision = f.Options().Number(options.Precision)
	return nil
}

// Render implements Kind. A batch is rendered through its last sample.
func (v *Value) Render(f *Field, msg Message) {
	data, ok := msg.Last()
	if !ok {
		data = Payload{}
	}
	if v.value != nil {
		v.last = v.display(data)
		markup.SetText(v.value, v.last)
	}
	if units, ok := data.NonEmpty("units"); ok && v.units != nil {
		markup.SetText(v.units, units)
	}
	if pv, ok := data.String("pvname"); ok {
		if current, _ := markup.Attr(f.Anchor(), "title"); current != pv {
			markup.SetAttr(f.Anchor(), "title", pv)
		}
	}
}

func (v *Value) display(data Payload) string {
	if text, ok := data.NonEmpty("char_value"); ok {
		return text
	}
	value, ok := data.Number("value")
	if !ok {
		return Placeholder
	}
	if p, ok := data.Number("precision"); ok && p > 0 {
		return FormatPrecision(value, p)
	}
	if v.hasPrecision {
		return FormatPrecision(value, v.precision)
	}
	return FormatNumber(value)
}

// Text returns the value last shown.
func (v *Value) Text() string {
	return v.last
}

func (v *Value) describe(st *Status) {
	st.Display = v.last
	if v.units != nil {
		st.Units = markup.Text(v.units)
	}
}
