package intake

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV_AliasedHeaders(t *testing.T) {
	input := "id , URL , Sq Ft , Postal Code\n a1 , https://x.example/1 ,\"1,450\", 78704 \n"

	got, err := ReadCSV(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)
	assert.Equal(t, "https://x.example/1", got[0].Link)
	assert.Equal(t, "78704", got[0].ZipCode)
	require.NotNil(t, got[0].Sqft)
	assert.InDelta(t, 1450, *got[0].Sqft, 0.01)
}

func TestReadCSV_Empty(t *testing.T) {
	got, err := ReadCSV(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadCSV_BadNumberReportsLine(t *testing.T) {
	input := "id,price\na,100000\nb,call for price\n"

	_, err := ReadCSV(context.Background(), strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 3")
	assert.Contains(t, err.Error(), "column price")
}

func TestReadCSV_MalformedQuote(t *testing.T) {
	input := "id,title\na,\"unterminated\n"

	_, err := ReadCSV(context.Background(), strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "intake: csv line 2")
}

func TestReadCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadCSV(ctx, strings.NewReader("id,address\n1,12 Elm St\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context canceled")
}
