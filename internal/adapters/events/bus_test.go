package events

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/blue-shark/internal/domain"
)

func TestLocalBusDeliversToEverySubscriber(t *testing.T) {
	bus := NewLocal("")
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	second, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	msg := &domain.Message{ID: "m1", Role: domain.RoleModel, Content: "2+2=4"}
	require.NoError(t, bus.Publish(ctx, domain.SessionUpdate{
		Kind:      domain.UpdateMessageChanged,
		SessionID: "s1",
		Message:   msg,
		At:        time.Now(),
	}))

	for _, ch := range []<-chan domain.SessionUpdate{first, second} {
		select {
		case got := <-ch:
			require.Equal(t, domain.UpdateMessageChanged, got.Kind)
			require.Equal(t, domain.SessionID("s1"), got.SessionID)
			require.Equal(t, "2+2=4", got.Message.Content)
		case <-time.After(2 * time.Second):
			t.Fatal("update not delivered")
		}
	}
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	bus := NewLocal("test.topic")
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	updates, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-updates:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestLocalBusPreservesPublishOrder(t *testing.T) {
	bus := NewLocal("")
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	const n = 500
	published := make(chan error, 1)
	go func() {
		for i := 0; i < n; i++ {
			err := bus.Publish(ctx, domain.SessionUpdate{
				Kind:      domain.UpdateMessageChanged,
				SessionID: "s1",
				Message:   &domain.Message{ID: "m1", Role: domain.RoleModel, Content: strconv.Itoa(i)},
				At:        time.Now(),
			})
			if err != nil {
				published <- err
				return
			}
		}
		published <- nil
	}()

	for i := 0; i < n; i++ {
		select {
		case got := <-updates:
			require.Equal(t, strconv.Itoa(i), got.Message.Content)
		case <-time.After(5 * time.Second):
			t.Fatalf("update %d not delivered", i)
		}
	}
	require.NoError(t, <-published)
}

func TestLocalBusPublishWithoutSubscribers(t *testing.T) {
	bus := NewLocal("")

	done := make(chan error, 1)
	go func() {
		done <- bus.Publish(context.Background(), domain.SessionUpdate{Kind: domain.UpdateCleared, At: time.Now()})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked with no subscribers")
	}
	require.NoError(t, bus.Close())
}
