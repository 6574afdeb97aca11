package intake

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/deal-engine/internal/model"
)

func TestReadJSON(t *testing.T) {
	input := `[{"id":"a","address":"12 Elm St"},{"id":"b","address":"9 Oak Ave","price":120000}]`

	got, err := ReadJSON(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "9 Oak Ave", got[1].Address)
	require.NotNil(t, got[1].Price)
	assert.InDelta(t, 120000, *got[1].Price, 0.01)
}

func TestReadJSON_EmptyInput(t *testing.T) {
	for _, input := range []string{"", "[]"} {
		got, err := ReadJSON(context.Background(), strings.NewReader(input))
		require.NoError(t, err, "input %q", input)
		assert.Empty(t, got, "input %q", input)
	}
}

func TestReadJSON_BadListing(t *testing.T) {
	_, err := ReadJSON(context.Background(), strings.NewReader(`[{"id":"a"},{"price":"cheap"}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "intake: listing 1")
}

func TestReadJSON_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadJSON(ctx, strings.NewReader(`[{"id":"a"}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context canceled")
}

func TestDecodeJSONObject(t *testing.T) {
	box, err := DecodeJSONObject[model.BuyBoxCriteria](strings.NewReader(`{"id":"bb1","name":"Austin flips"}`))
	require.NoError(t, err)
	assert.Equal(t, "bb1", box.ID)

	_, err = DecodeJSONObject[model.BuyBoxCriteria](strings.NewReader("not json"))
	require.Error(t, err)
}
