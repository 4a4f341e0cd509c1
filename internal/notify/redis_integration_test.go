//go:build integration

package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/bloodbank/bloodbank/internal/notify"
)

func TestRedisNotifier_Publishes(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	subscriber := redis.NewClient(opts)
	t.Cleanup(func() { _ = subscriber.Close() })

	sub := subscriber.Subscribe(ctx, "bloodbank.test")
	t.Cleanup(func() { _ = sub.Close() })
	_, err = sub.Receive(ctx)
	require.NoError(t, err, "subscription not confirmed")

	n, err := notify.NewRedisNotifier(ctx, url, "bloodbank.test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	require.NoError(t, n.Health(ctx))

	sent := notify.Event{
		Kind:       notify.EventDonationApproved,
		BloodType:  models.BloodTypeOPos,
		EntityID:   "donation-1",
		Quantity:   450,
		OccurredAt: time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, n.Notify(ctx, sent))

	select {
	case msg := <-sub.Channel():
		var got notify.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, sent, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}
