package intake

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-engine/internal/model"
)

// ReadCSV reads listings from a CSV document whose first row names the
// columns. Rows are mapped as they are read; a bad row stops the read with
// its line number.
func ReadCSV(ctx context.Context, r io.Reader) ([]*model.Property, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "intake: read csv header")
	}
	cols := columnIndex(header)

	var out []*model.Property
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "intake: read csv")
		}
		row, err := reader.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, eris.Wrapf(err, "intake: csv line %d", line)
		}
		p, err := parseRow(cols, row)
		if err != nil {
			return nil, eris.Wrapf(err, "intake: row %d", line)
		}
		out = append(out, p)
	}
}
