package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lanikai/libp2p-core-lite/multiaddr"
)

func TestTCPDialListenRoundTrip(t *testing.T) {
	var tr TCP
	listenAddr, err := multiaddr.TCP("127.0.0.1", 0)
	require.NoError(t, err)

	ln, err := tr.Listen(listenAddr)
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	acceptErr := make(chan error, 1)
	var accepted RawConn
	go func() {
		conn, err := ln.Accept(ctx)
		accepted = conn
		acceptErr <- err
	}()

	dialed, err := tr.Dial(ctx, ln.Addr())
	require.NoError(t, err)
	defer dialed.Close()

	require.NoError(t, <-acceptErr)
	defer accepted.Close()

	_, err = dialed.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 5)
	n, err := accepted.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))
}

func TestMemoryDialToNonListeningIDFails(t *testing.T) {
	ResetMemoryHub()
	var tr Memory
	_, err := tr.Dial(context.Background(), multiaddr.Memory("ghost"))
	require.ErrorIs(t, err, ErrNoSuchListener)
}

func TestMemoryDuplicateListenFails(t *testing.T) {
	ResetMemoryHub()
	var tr Memory
	addr := multiaddr.Memory("dup")

	ln, err := tr.Listen(addr)
	require.NoError(t, err)
	defer ln.Close()

	_, err = tr.Listen(addr)
	require.ErrorIs(t, err, ErrAddressInUse)
}

func TestMemoryRoundTrip(t *testing.T) {
	ResetMemoryHub()
	var tr Memory
	addr := multiaddr.Memory("chat")

	ln, err := tr.Listen(addr)
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	acceptErr := make(chan error, 1)
	var accepted RawConn
	go func() {
		conn, err := ln.Accept(ctx)
		accepted = conn
		acceptErr <- err
	}()

	dialed, err := tr.Dial(ctx, addr)
	require.NoError(t, err)
	defer dialed.Close()

	require.NoError(t, <-acceptErr)
	defer accepted.Close()

	_, err = dialed.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, err := accepted.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf[:n]))
}

func TestListenerCloseWakesWaiters(t *testing.T) {
	ResetMemoryHub()
	var tr Memory
	ln, err := tr.Listen(multiaddr.Memory("wake"))
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := ln.Accept(context.Background())
		errc <- err
	}()

	time.Sleep(50 * time.Millisecond)
	ln.Close()

	select {
	case err := <-errc:
		require.ErrorIs(t, err, ErrListenerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Accept did not wake on Close")
	}
}

func TestConcurrentReadRejected(t *testing.T) {
	ResetMemoryHub()
	var tr Memory
	addr := multiaddr.Memory("concurrent")
	ln, err := tr.Listen(addr)
	require.NoError(t, err)
	defer ln.Close()

	ctx := context.Background()
	go func() {
		dialed, err := tr.Dial(ctx, addr)
		if err == nil {
			defer dialed.Close()
			time.Sleep(time.Second)
		}
	}()

	accepted, err := ln.Accept(ctx)
	require.NoError(t, err)
	defer accepted.Close()

	go func() {
		buf := make([]byte, 1)
		accepted.Read(buf) //nolint:errcheck
	}()
	time.Sleep(50 * time.Millisecond)

	buf := make([]byte, 1)
	_, err = accepted.Read(buf)
	require.ErrorIs(t, err, ErrConcurrentRead)
}
