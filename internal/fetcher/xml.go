package fetcher

import (
	"context"
	"encoding/xml"
	"io"
	"slices"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// XMLRecord is one decoded element with where it was found.
type XMLRecord[T any] struct {
	Value T
	// Index counts matched elements from 1.
	Index int
	// Line is the input line of the element's start tag.
	Line int
}

type xmlOptions struct {
	buffer int
}

// XMLOption configures StreamXML.
type XMLOption func(*xmlOptions)

// WithXMLBuffer sets the capacity of the record channel.
func WithXMLBuffer(n int) XMLOption {
	return func(o *xmlOptions) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// newXMLDecoder reads exported notices as they are found in the wild: the
// declared charset is honored, HTML entities such as &eacute; resolve, and
// bare ampersands pass through as text.
func newXMLDecoder(r io.Reader) *xml.Decoder {
	d := xml.NewDecoder(r)
	d.Strict = false
	d.Entity = xml.HTMLEntity
	d.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "xml: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	return d
}

// StreamXML decodes every element whose local name is in names into a T and
// sends it, numbered, on the returned channel. T usually carries an XMLName
// field to tell the names apart. A matched element is decoded whole, so a
// matching name nested inside it is not emitted on its own. Both channels
// are closed when the input ends, on the first error, or when ctx is done.
func StreamXML[T any](ctx context.Context, r io.Reader, names []string, opts ...XMLOption) (<-chan XMLRecord[T], <-chan error) {
	o := xmlOptions{buffer: 64}
	for _, opt := range opts {
		opt(&o)
	}
	outCh := make(chan XMLRecord[T], o.buffer)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := newXMLDecoder(r)
		index := 0
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "xml: context cancelled")
				return
			}

			tok, err := decoder.Token()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrapf(err, "xml: read token after record %d", index)
				return
			}

			se, ok := tok.(xml.StartElement)
			if !ok || !slices.Contains(names, se.Name.Local) {
				continue
			}

			line, _ := decoder.InputPos()
			index++
			rec := XMLRecord[T]{Index: index, Line: line}
			if err := decoder.DecodeElement(&rec.Value, &se); err != nil {
				errCh <- eris.Wrapf(err, "xml: decode <%s> at line %d", se.Name.Local, line)
				return
			}

			select {
			case outCh <- rec:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "xml: context cancelled")
				return
			}
		}
	}()

	return outCh, errCh
}
