package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reconciler/internal/contact/models"
	id "reconciler/pkg/domain"
)

func TestEncode(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	t.Run("merge event carries absorbed primaries", func(t *testing.T) {
		record, err := Encode("ids", models.IdentityEvent{
			Type:        models.EventIdentityMerged,
			PrimaryID:   4,
			AbsorbedIDs: []id.ContactID{7, 9},
			RequestID:   "req-1",
			OccurredAt:  at,
		})
		require.NoError(t, err)
		assert.Equal(t, "ids", record.Topic)
		assert.Equal(t, []byte("4"), record.Key)
		require.Len(t, record.Headers, 1)
		assert.Equal(t, "identity.merged", string(record.Headers[0].Value))

		var body map[string]any
		require.NoError(t, json.Unmarshal(record.Value, &body))
		assert.Equal(t, "identity.merged", body["type"])
		assert.EqualValues(t, 4, body["primaryId"])
		assert.Equal(t, []any{float64(7), float64(9)}, body["absorbedIds"])
		assert.Equal(t, "2026-03-01T11:00:00Z", body["occurredAt"])
		assert.NotContains(t, body, "contactId")
	})

	t.Run("attach event names the new secondary", func(t *testing.T) {
		record, err := Encode(DefaultTopic, models.IdentityEvent{
			Type:       models.EventContactAttached,
			PrimaryID:  1,
			ContactID:  2,
			OccurredAt: at,
		})
		require.NoError(t, err)

		var body map[string]any
		require.NoError(t, json.Unmarshal(record.Value, &body))
		assert.EqualValues(t, 2, body["contactId"])
		assert.NotContains(t, body, "absorbedIds")
		assert.NotContains(t, body, "requestId")
	})
}

func TestNewKafkaPublisherRequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "")
	assert.Error(t, err)
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), models.IdentityEvent{}))
}
