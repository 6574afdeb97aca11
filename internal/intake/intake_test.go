package intake

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/deal-engine/internal/model"
)

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_JSON(t *testing.T) {
	path := writeTestFile(t, "candidates.json", `[
		{"id":"a","address":"12 Elm St","price":200000,"sqft":1200,"property_type":"single_family"},
		{"id":"b","address":"9 Oak Ave","extraction_confidences":[80,90]}
	]`)

	got, err := Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	require.NotNil(t, got[0].Price)
	assert.InDelta(t, 200000, *got[0].Price, 0.01)
	assert.Equal(t, model.PropertyTypeSingleFamily, got[0].PropertyType)
	assert.Nil(t, got[1].Price)
	assert.Equal(t, []float64{80, 90}, got[1].ExtractionConfidences)
}

func TestLoad_JSONNotArray(t *testing.T) {
	path := writeTestFile(t, "candidates.json", `{"id":"a"}`)

	_, err := Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want a JSON array of listings")
}

func TestLoad_CSV(t *testing.T) {
	path := writeTestFile(t, "candidates.csv",
		"ID,Address,City,Price,Beds,Baths,Square Feet,Condition,Zip,Extraction Confidences\n"+
			"a, 12 Elm St ,Austin,\"$200,000\",3,2,1200,Fair,78701,80;90\n"+
			"b,9 Oak Ave,Dallas,,,,,,,\n")

	got, err := Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	a := got[0]
	assert.Equal(t, "12 Elm St", a.Address)
	assert.Equal(t, "78701", a.ZipCode)
	assert.InDelta(t, 200000, *a.Price, 0.01)
	assert.InDelta(t, 3, *a.Bedrooms, 0.01)
	assert.InDelta(t, 2, *a.Bathrooms, 0.01)
	assert.InDelta(t, 1200, *a.Sqft, 0.01)
	assert.Equal(t, model.ConditionFair, a.Condition)
	assert.Equal(t, []float64{80, 90}, a.ExtractionConfidences)

	b := got[1]
	assert.Equal(t, "Dallas", b.City)
	assert.Nil(t, b.Price)
	assert.Empty(t, b.Declared())
}

func TestLoad_CSVHeaderOnly(t *testing.T) {
	path := writeTestFile(t, "candidates.csv", "id,address\n")

	got, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoad_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.xlsx")
	require.NoError(t, WriteXLSX(path, "Listings",
		[]string{"id", "address", "price", "link"},
		[][]string{{"x1", "5 Pine Rd", "150000", "https://example.com/5"}},
	))

	got, err := Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "x1", got[0].ID)
	assert.Equal(t, "https://example.com/5", got[0].Link)
	assert.InDelta(t, 150000, *got[0].Price, 0.01)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(context.Background(), "candidates.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")

	_, err = Load(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "intake: open file")
}

func TestFromRows_BadNumber(t *testing.T) {
	_, err := FromRows([]string{"id", "price"}, [][]string{{"a", "100"}, {"b", "lots"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 3")
	assert.Contains(t, err.Error(), "column price")
}

func TestFromRows_ShortRow(t *testing.T) {
	got, err := FromRows([]string{"id", "address", "price"}, [][]string{{"a"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	assert.Empty(t, got[0].Address)
	assert.Nil(t, got[0].Price)
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want *float64
		err  bool
	}{
		{"", nil, false},
		{"  ", nil, false},
		{"1200", model.Float(1200), false},
		{"$1,250,000.50", model.Float(1250000.5), false},
		{"12.5%", model.Float(12.5), false},
		{"n/a", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseNumber(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 0.0001)
		})
	}
}
