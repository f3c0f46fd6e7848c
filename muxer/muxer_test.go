package muxer

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lanikai/libp2p-core-lite/multiaddr"
)

func testPair(t *testing.T) (*Connection, *Connection) {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	addr := multiaddr.Memory("muxer-test")

	clientCh := make(chan *Connection, 1)
	serverCh := make(chan *Connection, 1)
	errCh := make(chan error, 2)

	go func() {
		c, err := NewClient(clientConn, "client", "server", addr, addr)
		if err != nil {
			errCh <- err
			return
		}
		clientCh <- c
	}()
	go func() {
		s, err := NewServer(serverConn, "server", "client", addr, addr)
		if err != nil {
			errCh <- err
			return
		}
		serverCh <- s
	}()

	select {
	case err := <-errCh:
		t.Fatalf("session setup failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out establishing yamux sessions")
	case client := <-clientCh:
		server := <-serverCh
		return client, server
	}
	return nil, nil
}

func TestOpenAcceptStreamRoundTrip(t *testing.T) {
	client, server := testPair(t)
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	acceptCh := make(chan MuxedStream, 1)
	acceptErr := make(chan error, 1)
	go func() {
		s, err := server.AcceptStream()
		acceptCh <- s
		acceptErr <- err
	}()

	clientStream, err := client.OpenStream(ctx)
	require.NoError(t, err)
	defer clientStream.Close()

	require.NoError(t, <-acceptErr)
	serverStream := <-acceptCh
	defer serverStream.Close()

	_, err = clientStream.Write([]byte("hi"))
	require.NoError(t, err)

	buf := make([]byte, 2)
	n, err := serverStream.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hi", string(buf[:n]))
}

func TestHalfClose(t *testing.T) {
	client, server := testPair(t)
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	acceptCh := make(chan MuxedStream, 1)
	go func() {
		s, _ := server.AcceptStream()
		acceptCh <- s
	}()

	clientStream, err := client.OpenStream(ctx)
	require.NoError(t, err)
	defer clientStream.Close()

	serverStream := <-acceptCh
	defer serverStream.Close()

	require.NoError(t, clientStream.CloseWrite())

	buf := make([]byte, 1)
	_, err = serverStream.Read(buf)
	require.Error(t, err) // EOF once the peer half-closed its write side
}

func TestReset(t *testing.T) {
	client, server := testPair(t)
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	acceptCh := make(chan MuxedStream, 1)
	go func() {
		s, _ := server.AcceptStream()
		acceptCh <- s
	}()

	clientStream, err := client.OpenStream(ctx)
	require.NoError(t, err)

	serverStream := <-acceptCh
	defer serverStream.Close()

	require.NoError(t, clientStream.Reset())

	buf := make([]byte, 1)
	_, err = serverStream.Read(buf)
	require.Error(t, err)
}
