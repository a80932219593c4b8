package fetcher

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// DecodeJSONArray decodes a JSON array streaming, sending each element to a channel.
// Expects input in the form [{...},{...}].
// Both channels are closed when processing completes.
func DecodeJSONArray[T any](ctx context.Context, r io.Reader) (<-chan T, <-chan error) {
	return DecodeJSONArrayField[T](ctx, r, "")
}

// DecodeJSONArrayField streams the elements of the array held by field of a
// top-level object, as in {"releases":[...]}. A top-level array is streamed
// as is. An object without the field yields nothing.
// Both channels are closed when processing completes.
func DecodeJSONArrayField[T any](ctx context.Context, r io.Reader, field string) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := json.NewDecoder(r)

		tok, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				return
			}
			errCh <- eris.Wrap(err, "json: read opening token")
			return
		}

		delim, ok := tok.(json.Delim)
		switch {
		case ok && delim == '[':
		case ok && delim == '{' && field != "":
			found, err := seekField(decoder, field)
			if err != nil {
				errCh <- err
				return
			}
			if !found {
				return
			}
		default:
			errCh <- eris.Errorf("json: expected '[', got %v", tok)
			return
		}

		for decoder.More() {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}

			var item T
			if err := decoder.Decode(&item); err != nil {
				errCh <- eris.Wrap(err, "json: decode element")
				return
			}

			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}
		}

		// Consume closing bracket
		if _, err := decoder.Token(); err != nil && err != io.EOF {
			errCh <- eris.Wrap(err, "json: read closing token")
		}
	}()

	return outCh, errCh
}

// seekField advances decoder, positioned inside an object, past the opening
// bracket of field's array value. Other members are skipped.
func seekField(decoder *json.Decoder, field string) (bool, error) {
	for decoder.More() {
		tok, err := decoder.Token()
		if err != nil {
			return false, eris.Wrap(err, "json: read key")
		}
		key, _ := tok.(string)
		if key != field {
			var skip json.RawMessage
			if err := decoder.Decode(&skip); err != nil {
				return false, eris.Wrapf(err, "json: skip %q", key)
			}
			continue
		}

		tok, err = decoder.Token()
		if err != nil {
			return false, eris.Wrapf(err, "json: read %q", field)
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			return false, eris.Errorf("json: %q is not an array", field)
		}
		return true, nil
	}
	return false, nil
}
