package dcutr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/lanikai/libp2p-core-lite/event"
	"github.com/lanikai/libp2p-core-lite/multiaddr"
	"github.com/lanikai/libp2p-core-lite/muxer"
	"github.com/lanikai/libp2p-core-lite/peer"
)

const (
	defaultMaxAttempts = 3
	defaultTimeout     = 10 * time.Second
	defaultDialTimeout = 10 * time.Second
	maxBackoff         = 30 * time.Second
)

// Dialer is the subset of upgrader.Upgrader's contract DCUtR needs to
// attempt a direct dial to a candidate address. *upgrader.Upgrader
// satisfies this directly.
type Dialer interface {
	Dial(ctx context.Context, addr multiaddr.Multiaddr, remote peer.ID) (muxer.MuxedConnection, error)
}

// Config tunes one Initiate/Respond call. The zero value is usable:
// MaxAttempts defaults to 3, Timeout and DialTimeout to 10s, and Clock to
// the real wall clock. Events is optional; when set, Initiate/Respond emit
// onto it following the same event.Broadcaster pattern discovery/mdns uses
// for PeerObservations.
type Config struct {
	Dialer      Dialer
	Clock       clock.Clock
	Timeout     time.Duration
	DialTimeout time.Duration
	MaxAttempts int
	Events      *event.Broadcaster[Event]
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	return c
}

// Initiate runs the initiator side of the DCUtR state machine (spec.md
// §4.14) over an existing relayed connection: it opens a DCUtR stream,
// exchanges observed addresses, waits out half the measured round trip
// to line up with the responder's own dial, then dials every candidate
// address in parallel and keeps the first to succeed. Fatal errors
// (NotRelayedConnection, NoAddresses, ProtocolViolation) skip the retry
// loop; everything else retries up to cfg.MaxAttempts with exponential
// backoff.
func Initiate(ctx context.Context, relayed muxer.MuxedConnection, remote peer.ID, localAddrs []multiaddr.Multiaddr, cfg Config) (muxer.MuxedConnection, multiaddr.Multiaddr, error) {
	if !muxer.IsViaRelay(relayed) {
		return nil, multiaddr.Multiaddr{}, ErrNotRelayedConnection
	}
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		emitEvent(cfg.Events, HolePunchAttemptStarted{Attempt: attempt, Max: cfg.MaxAttempts})

		conn, addr, err := initiateAttempt(ctx, relayed, remote, localAddrs, cfg, attempt)
		if err == nil {
			return conn, addr, nil
		}
		if errors.Is(err, ErrNoAddresses) || errors.Is(err, ErrProtocolViolation) {
			emitEvent(cfg.Events, HolePunchAttemptFailed{Attempt: attempt, Max: cfg.MaxAttempts})
			return nil, multiaddr.Multiaddr{}, err
		}

		emitEvent(cfg.Events, HolePunchAttemptFailed{Attempt: attempt, Max: cfg.MaxAttempts})
		lastErr = err
		if attempt == cfg.MaxAttempts {
			break
		}

		backoff := time.Duration(1<<uint(attempt-1)) * time.Second
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		select {
		case <-cfg.Clock.After(backoff):
		case <-ctx.Done():
			return nil, multiaddr.Multiaddr{}, ctx.Err()
		}
	}
	emitEvent(cfg.Events, HolePunchFailed{Reason: fmt.Sprintf("Max attempts exceeded (%d)", cfg.MaxAttempts)})
	return nil, multiaddr.Multiaddr{}, &MaxAttemptsExceededError{Inner: lastErr}
}

func initiateAttempt(ctx context.Context, relayed muxer.MuxedConnection, remote peer.ID, localAddrs []multiaddr.Multiaddr, cfg Config, attempt int) (muxer.MuxedConnection, multiaddr.Multiaddr, error) {
	stream, err := relayed.OpenStream(ctx)
	if err != nil {
		return nil, multiaddr.Multiaddr{}, err
	}
	stream.SetProtocolID(ProtocolID)
	br := bufio.NewReader(stream)

	t0 := cfg.Clock.Now()
	if err := sendMessage(ctx, stream, cfg.Timeout, holePunchMessage{typ: msgTypeConnect, obsAddrs: localAddrs}); err != nil {
		stream.Close()
		return nil, multiaddr.Multiaddr{}, err
	}

	reply, err := recvMessage(ctx, br, cfg.Timeout)
	if err != nil {
		stream.Close()
		return nil, multiaddr.Multiaddr{}, err
	}
	if reply.typ != msgTypeConnect {
		stream.Close()
		return nil, multiaddr.Multiaddr{}, ErrProtocolViolation
	}
	theirAddrs := reply.obsAddrs
	if len(theirAddrs) == 0 {
		stream.Close()
		return nil, multiaddr.Multiaddr{}, ErrNoAddresses
	}

	rtt := cfg.Clock.Now().Sub(t0)

	if err := sendMessage(ctx, stream, cfg.Timeout, holePunchMessage{typ: msgTypeSync}); err != nil {
		stream.Close()
		return nil, multiaddr.Multiaddr{}, err
	}

	select {
	case <-cfg.Clock.After(rtt / 2):
	case <-ctx.Done():
		stream.Close()
		return nil, multiaddr.Multiaddr{}, ctx.Err()
	}

	stream.Close()

	emitEvent(cfg.Events, AddressExchangeCompleted{Attempt: attempt})

	candidates := filterDialable(theirAddrs)
	if len(candidates) == 0 {
		return nil, multiaddr.Multiaddr{}, ErrNoAddresses
	}

	conn, addr, err := dialFirstSuccess(ctx, cfg, candidates, remote)
	if err != nil {
		return nil, multiaddr.Multiaddr{}, ErrAllDialsFailed
	}
	emitEvent(cfg.Events, DirectConnectionEstablished{Attempt: attempt, Addr: addr})
	return conn, addr, nil
}

// dialFirstSuccess dials every candidate in parallel and returns the
// first to succeed, cancelling the rest.
func dialFirstSuccess(ctx context.Context, cfg Config, candidates []multiaddr.Multiaddr, remote peer.ID) (muxer.MuxedConnection, multiaddr.Multiaddr, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		conn multiaddr.Multiaddr
		c    muxer.MuxedConnection
		err  error
	}
	results := make(chan result, len(candidates))

	for _, addr := range candidates {
		addr := addr
		go func() {
			dialCtx, dialCancel := context.WithTimeout(ctx, cfg.DialTimeout)
			defer dialCancel()
			c, err := cfg.Dialer.Dial(dialCtx, addr, remote)
			results <- result{conn: addr, c: c, err: err}
		}()
	}

	var firstErr error
	for range candidates {
		r := <-results
		if r.err == nil {
			return r.c, r.conn, nil
		}
		if firstErr == nil {
			firstErr = r.err
		}
	}
	return nil, multiaddr.Multiaddr{}, firstErr
}
