package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/competitor-newsletter/internal/notify"
)

func TestBusCoalescesSignals(t *testing.T) {
	bus := notify.NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Notify(context.Background()))
	}

	<-ch
	select {
	case <-ch:
		t.Fatal("expected signals to coalesce")
	default:
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := notify.NewBus()
	ch, cancel := bus.Subscribe()
	cancel()
	cancel()

	require.NoError(t, bus.Notify(context.Background()))
	select {
	case <-ch:
		t.Fatal("unsubscribed channel must not receive")
	default:
	}
}

type failingNotifier struct{ err error }

func (f failingNotifier) Notify(context.Context) error { return f.err }

func TestMultiNotifiesAll(t *testing.T) {
	bus := notify.NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	errBoom := errors.New("boom")
	err := notify.Multi{failingNotifier{err: errBoom}, bus}.Notify(context.Background())
	require.ErrorIs(t, err, errBoom)

	select {
	case <-ch:
	default:
		t.Fatal("bus should still be notified")
	}
}

func TestRedisBridgeRelaysAcrossProcesses(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local := notify.NewBus()
	sig, unsubscribe := local.Subscribe()
	defer unsubscribe()

	bridge := notify.NewRedisBridge(client, "", nil)
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- bridge.Relay(ctx, local, ready) }()
	<-ready

	other := notify.NewRedisBridge(client, notify.Topic, nil)
	require.NoError(t, other.Notify(ctx))

	select {
	case <-sig:
	case <-time.After(2 * time.Second):
		t.Fatal("signal was not relayed")
	}

	cancel()
	require.NoError(t, <-done)
}
