package intake

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-engine/internal/model"
)

// ReadJSON reads listings from a top-level JSON array, decoding one element
// at a time. An empty document yields no listings.
func ReadJSON(ctx context.Context, r io.Reader) ([]*model.Property, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "intake: read json")
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, eris.Errorf("intake: want a JSON array of listings, got %v", tok)
	}

	var out []*model.Property
	for i := 0; dec.More(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "intake: read json")
		}
		p := &model.Property{}
		if err := dec.Decode(p); err != nil {
			return nil, eris.Wrapf(err, "intake: listing %d", i)
		}
		out = append(out, p)
	}
	return out, nil
}

// DecodeJSONObject decodes one JSON document from r.
func DecodeJSONObject[T any](r io.Reader) (*T, error) {
	var obj T
	if err := json.NewDecoder(r).Decode(&obj); err != nil {
		return nil, eris.Wrap(err, "intake: decode json")
	}
	return &obj, nil
}
