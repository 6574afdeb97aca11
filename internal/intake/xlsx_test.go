package intake

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	err := f.Save(path)
	require.NoError(t, err)
	return path
}

func TestReadXLSX_SkipRows(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"Header1", "Header2"},
			{"a", "b"},
			{"c", "d"},
		},
	})

	rows, err := ReadXLSX(path, XLSXOptions{SkipRows: 1})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"a", "b"}, rows[0])
	assert.Equal(t, []string{"c", "d"}, rows[1])
}

func TestReadXLSX_SheetName(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"First":  {{"a", "b"}},
		"Second": {{"x", "y"}, {"1", "2"}},
	})

	rows, err := ReadXLSX(path, XLSXOptions{SheetName: "Second"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"x", "y"}, rows[0])
}

func TestReadXLSX_SheetErrors(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {{"a"}},
	})

	_, err := ReadXLSX(path, XLSXOptions{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = ReadXLSX(path, XLSXOptions{SheetIndex: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestReadXLSX_NotAWorkbook(t *testing.T) {
	path := writeTestFile(t, "bad.xlsx", "this is not an xlsx file")

	_, err := ReadXLSX(path, XLSXOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xlsx: open file")
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.xlsx")
	header := []string{"id", "reason"}
	require.NoError(t, WriteXLSX(path, "Rejections", header, [][]string{
		{"r1", "price mismatch"},
		{"r2", "blacklisted"},
	}))

	rows, err := ReadXLSX(path, XLSXOptions{SheetName: "Rejections"})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, []string{"r2", "blacklisted"}, rows[2])
}
