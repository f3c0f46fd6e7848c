package dcutr

import (
	"bufio"
	"context"

	"github.com/lanikai/libp2p-core-lite/multiaddr"
	"github.com/lanikai/libp2p-core-lite/muxer"
	"github.com/lanikai/libp2p-core-lite/peer"
)

// Respond runs the responder side of the DCUtR state machine on an
// inbound DCUtR stream (spec.md §4.14): read the initiator's CONNECT,
// reply with our own, read its SYNC, close the stream, then race a
// direct dial to every candidate the initiator offered. A dial failure
// here is not a connection error — the initiator may have succeeded from
// its own side — so Respond only returns an error for protocol-level
// problems; dial outcomes are reported via the returned bool.
func Respond(ctx context.Context, stream muxer.MuxedStream, remote peer.ID, localAddrs []multiaddr.Multiaddr, cfg Config) (conn muxer.MuxedConnection, addr multiaddr.Multiaddr, punched bool, err error) {
	cfg = cfg.withDefaults()
	br := bufio.NewReader(stream)

	request, err := recvMessage(ctx, br, cfg.Timeout)
	if err != nil {
		return nil, multiaddr.Multiaddr{}, false, err
	}
	if request.typ != msgTypeConnect {
		return nil, multiaddr.Multiaddr{}, false, ErrProtocolViolation
	}
	theirAddrs := request.obsAddrs

	if err := sendMessage(ctx, stream, cfg.Timeout, holePunchMessage{typ: msgTypeConnect, obsAddrs: localAddrs}); err != nil {
		return nil, multiaddr.Multiaddr{}, false, err
	}

	reply, err := recvMessage(ctx, br, cfg.Timeout)
	if err != nil {
		return nil, multiaddr.Multiaddr{}, false, err
	}
	if reply.typ != msgTypeSync {
		return nil, multiaddr.Multiaddr{}, false, ErrProtocolViolation
	}

	stream.Close()

	emitEvent(cfg.Events, AddressExchangeCompleted{Attempt: 1})

	candidates := filterDialable(theirAddrs)
	if len(candidates) == 0 {
		return nil, multiaddr.Multiaddr{}, false, nil
	}

	direct, won, dialErr := dialFirstSuccess(ctx, cfg, candidates, remote)
	if dialErr != nil {
		return nil, multiaddr.Multiaddr{}, false, nil
	}
	emitEvent(cfg.Events, DirectConnectionEstablished{Attempt: 1, Addr: won})
	return direct, won, true, nil
}
