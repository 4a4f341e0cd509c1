package notify_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/bloodbank/bloodbank/internal/notify"
	"github.com/bloodbank/bloodbank/internal/notify/mocks"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	next := mocks.NewMockNotifier(ctrl)

	delivered := make(chan notify.Event, 2)
	next.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e notify.Event) error {
			delivered <- e
			return nil
		}).Times(2)

	d := notify.NewDispatcher(next, 4, quietLogger())
	require.NoError(t, d.Notify(context.Background(), notify.Event{Kind: notify.EventDonationApproved, EntityID: "d-1"}))
	require.NoError(t, d.Notify(context.Background(), notify.Event{Kind: notify.EventRequestStatusChanged, EntityID: "r-1"}))
	d.Close()

	first := <-delivered
	second := <-delivered
	assert.Equal(t, "d-1", first.EntityID)
	assert.Equal(t, "r-1", second.EntityID)
	assert.False(t, first.OccurredAt.IsZero(), "dispatcher stamps the event time")
}

type blockingNotifier struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingNotifier) Notify(context.Context, notify.Event) error {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-b.release
	return nil
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	next := &blockingNotifier{started: make(chan struct{}, 1), release: make(chan struct{})}
	d := notify.NewDispatcher(next, 1, quietLogger())
	ctx := context.Background()

	// The worker takes the first event and blocks on it.
	require.NoError(t, d.Notify(ctx, notify.Event{Kind: notify.EventInventoryAlert}))
	select {
	case <-next.started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never picked up the first event")
	}

	// One fits in the queue, the next is dropped without blocking.
	require.NoError(t, d.Notify(ctx, notify.Event{Kind: notify.EventInventoryAlert}))
	require.NoError(t, d.Notify(ctx, notify.Event{Kind: notify.EventInventoryAlert}))
	assert.Equal(t, uint64(1), d.Dropped())

	close(next.release)
	d.Close()

	require.NoError(t, d.Notify(ctx, notify.Event{Kind: notify.EventInventoryAlert}))
	assert.Equal(t, uint64(2), d.Dropped(), "events after close are dropped")
}

func TestDispatcher_DeliveryErrorIsSwallowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	next := mocks.NewMockNotifier(ctrl)
	next.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(errors.New("sink down"))

	var logs bytes.Buffer
	d := notify.NewDispatcher(next, 1, slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, d.Notify(context.Background(), notify.Event{Kind: notify.EventDonationRejected}))
	d.Close()

	assert.Contains(t, logs.String(), "notification delivery failed")
}

func TestMulti_JoinsErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	ok := mocks.NewMockNotifier(ctrl)
	failing := mocks.NewMockNotifier(ctrl)

	event := notify.Event{Kind: notify.EventInventoryAlert, BloodType: models.BloodTypeONeg}
	ok.EXPECT().Notify(gomock.Any(), event).Return(nil)
	failing.EXPECT().Notify(gomock.Any(), event).Return(errors.New("boom"))

	err := notify.Multi{ok, failing}.Notify(context.Background(), event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestLogNotifier_CriticalAlertsWarn(t *testing.T) {
	var logs bytes.Buffer
	n := notify.NewLogNotifier(slog.New(slog.NewTextHandler(&logs, nil)))

	err := n.Notify(context.Background(), notify.Event{
		Kind:      notify.EventInventoryAlert,
		BloodType: models.BloodTypeABNeg,
		Severity:  string(models.SeverityCritical),
		Message:   "AB- blood stock is critically low (2 units remaining)",
	})
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "blood_type=AB-")
}
