//go:build integration

package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"reconciler/internal/contact/events"
	"reconciler/internal/contact/models"
	id "reconciler/pkg/domain"
	"reconciler/pkg/testutil/containers"
)

func TestKafkaPublisherDeliversEvents(t *testing.T) {
	redpanda := containers.GetManager().GetRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := "identity-events-" + time.Now().Format("150405.000")

	admin, err := kgo.NewClient(kgo.SeedBrokers(redpanda.Brokers...))
	require.NoError(t, err)
	defer admin.Close()
	_, err = kadm.NewClient(admin).CreateTopics(ctx, 1, 1, nil, topic)
	require.NoError(t, err)

	publisher, err := events.NewKafkaPublisher(redpanda.Brokers, topic)
	require.NoError(t, err)
	defer publisher.Close()
	require.NoError(t, publisher.Ping(ctx))

	require.NoError(t, publisher.Publish(ctx, models.IdentityEvent{
		Type:        models.EventIdentityMerged,
		PrimaryID:   1,
		AbsorbedIDs: []id.ContactID{3},
		RequestID:   "req-merge",
		OccurredAt:  time.Now(),
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var records []*kgo.Record
	for len(records) == 0 && ctx.Err() == nil {
		fetches := consumer.PollFetches(ctx)
		for _, fetchErr := range fetches.Errors() {
			require.NoError(t, fetchErr.Err)
		}
		fetches.EachRecord(func(r *kgo.Record) {
			records = append(records, r)
		})
	}
	require.Len(t, records, 1)
	assert.Equal(t, "1", string(records[0].Key))

	var body map[string]any
	require.NoError(t, json.Unmarshal(records[0].Value, &body))
	assert.Equal(t, "identity.merged", body["type"])
	assert.Equal(t, "req-merge", body["requestId"])
}
