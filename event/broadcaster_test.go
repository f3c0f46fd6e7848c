package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEmitOrderedDelivery(t *testing.T) {
	b := New[int]()
	ch := b.Subscribe(4)

	b.Emit(1)
	b.Emit(2)
	b.Emit(3)

	require.Equal(t, 1, <-ch)
	require.Equal(t, 2, <-ch)
	require.Equal(t, 3, <-ch)
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	b := New[string]()
	a := b.Subscribe(1)
	c := b.Subscribe(1)

	b.Emit("hi")
	require.Equal(t, "hi", <-a)
	require.Equal(t, "hi", <-c)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New[int]()
	ch := b.Subscribe(1)
	require.NoError(t, b.Unsubscribe(ch))

	_, ok := <-ch
	require.False(t, ok)

	require.ErrorIs(t, b.Unsubscribe(ch), ErrNotSubscribed)
}

func TestShutdownClosesAll(t *testing.T) {
	b := New[int]()
	a := b.Subscribe(1)
	c := b.Subscribe(1)
	b.Shutdown()

	_, ok := <-a
	require.False(t, ok)
	_, ok = <-c
	require.False(t, ok)

	// Subscribing after shutdown yields an immediately-closed channel.
	post := b.Subscribe(1)
	_, ok = <-post
	require.False(t, ok)
}

func TestDropSlowestDoesNotBlockProducer(t *testing.T) {
	b := New[int](WithDropSlowest[int]())
	ch := b.Subscribe(1)

	done := make(chan struct{})
	go func() {
		b.Emit(1)
		b.Emit(2)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked with WithDropSlowest configured")
	}

	require.Equal(t, 2, <-ch)
}
