// Package ticket renders the printed receipt handed to a visitor.
package ticket

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/roach88/frontdesk/internal/record"
)

// Defaults for Options.
const (
	DefaultWidth  = 32
	DefaultTitle  = "REGISTRO DE PROVEEDORES"
	DefaultFooter = "Conserve este ticket"

	labelWidth = 11
	minWidth   = 20
)

// Options controls the layout of a ticket.
type Options struct {
	Width    int            // printer columns; DefaultWidth if zero
	Title    string         // DefaultTitle if empty
	Footer   string         // DefaultFooter if empty
	Location *time.Location // time zone for date and time; record's own if nil
}

func (o Options) withDefaults() Options {
	if o.Width == 0 {
		o.Width = DefaultWidth
	}
	if o.Width < minWidth {
		o.Width = minWidth
	}
	if o.Title == "" {
		o.Title = DefaultTitle
	}
	if o.Footer == "" {
		o.Footer = DefaultFooter
	}
	return o
}

// Render returns the ticket text for r. Every line ends with '\n' and none is
// wider than the configured width.
func Render(r record.Record, opts Options) []byte {
	opts = opts.withDefaults()
	ts := r.Timestamp
	if opts.Location != nil {
		ts = ts.In(opts.Location)
	}

	p := printer{width: opts.Width}
	p.rule('=')
	p.center(opts.Title)
	p.rule('=')
	p.center(fmt.Sprintf("TURNO %d", r.Turn))
	p.rule('-')
	p.field("Folio", fmt.Sprintf("%06d", r.ID))
	p.field("Fecha", ts.Format("2006-01-02"))
	p.field("Hora", ts.Format("15:04:05"))
	p.field("Nombre", r.FirstName+" "+r.LastName)
	p.field("Sociedad", r.Company)
	p.field("Proveedor", r.Provider)
	p.field("Placas", r.Plate)
	p.rule('-')
	p.center(opts.Footer)
	p.rule('=')
	return p.buf.Bytes()
}

// Write renders r to w.
func Write(w io.Writer, r record.Record, opts Options) error {
	_, err := w.Write(Render(r, opts))
	return err
}

type printer struct {
	buf   bytes.Buffer
	width int
}

func (p *printer) line(s string) {
	p.buf.WriteString(s)
	p.buf.WriteByte('\n')
}

func (p *printer) rule(c byte) {
	p.line(strings.Repeat(string(c), p.width))
}

func (p *printer) center(s string) {
	s = fit(s, p.width)
	pad := (p.width - utf8.RuneCountInString(s)) / 2
	p.line(strings.Repeat(" ", pad) + s)
}

func (p *printer) field(label, value string) {
	p.line(fmt.Sprintf("%-*s", labelWidth, label+":") + fit(value, p.width-labelWidth))
}

// fit shortens s to n runes, marking the cut with a trailing '.'.
func fit(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "."
}
