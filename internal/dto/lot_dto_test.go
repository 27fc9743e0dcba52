package dto

import (
	"encoding/json"
	"testing"
	"time"

	"lotflow/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyLotDetailKeepsItemsKey(t *testing.T) {
	lot := model.Lot{ID: uuid.New(), CreatedAt: time.Now().UTC()}

	raw, err := json.Marshal(LotEnvelope{Item: LotFromModel(lot)})
	require.NoError(t, err)

	var wire map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &wire))
	items, ok := wire["item"]["items"]
	require.True(t, ok, "items key must be present")
	assert.JSONEq(t, `[]`, string(items))
}

func TestListedLotHasNoItemsKey(t *testing.T) {
	raw, err := json.Marshal(LotListResponse{Items: []LotResponse{{ID: uuid.New()}}})
	require.NoError(t, err)

	var wire struct {
		Items []map[string]json.RawMessage `json:"items"`
	}
	require.NoError(t, json.Unmarshal(raw, &wire))
	require.Len(t, wire.Items, 1)
	_, ok := wire.Items[0]["items"]
	assert.False(t, ok)
}

func TestNormalizeDetailWithoutItems(t *testing.T) {
	var env LotEnvelope
	require.NoError(t, json.Unmarshal([]byte(`{"item":{"id":"`+uuid.NewString()+`","total":2,"pending":2}}`), &env))

	summary, items := NormalizeDetail(zerolog.Nop(), env.Item)
	require.NotNil(t, items)
	assert.Empty(t, items)
	assert.Equal(t, 0, summary.Total, "recomputed from the items")
}

func TestNormalizeSummaryKeepsReceivedCounters(t *testing.T) {
	summary, items := NormalizeSummary(zerolog.Nop(), LotResponse{ID: uuid.New(), Total: 3, Pending: 1, HS: 2})
	assert.Nil(t, items)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Pending)
}
