// Package render turns model replies written in markdown into styled
// terminal text.
package render

// Options selects how a reply is rendered. Options is comparable and is
// used directly as the renderer pool key.
type Options struct {
	// Width is the wrap column
	Width int
	// Style is a built-in glamour style name or a path to a JSON style
	Style string

	EnableEmoji      bool
	PreserveNewLines bool
	TableWrap        bool
	InlineTableLinks bool
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		Width:            80,
		Style:            "dark",
		PreserveNewLines: true,
		TableWrap:        true,
	}
}

// WithWidth returns a copy of o wrapping at width
func (o Options) WithWidth(width int) Options {
	o.Width = width
	return o
}
