// Package identify implements a minimal identify-lite handler: a peer
// that opens an identify stream learns the protocol/agent version of
// whoever accepted it and, crucially, the address the acceptor saw it
// dial from. Service.ObservedAddrs returns those addresses in the form
// dcutr.Initiate and dcutr.Respond take as their localAddrs argument.
package identify

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/lanikai/libp2p-core-lite/internal/log"
	"github.com/lanikai/libp2p-core-lite/internal/varint"
	"github.com/lanikai/libp2p-core-lite/multiaddr"
	"github.com/lanikai/libp2p-core-lite/muxer"
	"github.com/lanikai/libp2p-core-lite/protoutil"
)

var logger = log.WithTag("identify")

// ProtocolID is the multistream-select protocol id negotiated for the
// identify stream.
const ProtocolID = "/libp2p/id/1.0.0"

// MaxMessageSize bounds one identify wire message.
const MaxMessageSize = 8192

const defaultTimeout = 10 * time.Second

// Field numbers of the identify protobuf-lite message.
const (
	fieldObservedAddr    = 1
	fieldListenAddr      = 2
	fieldProtocolVersion = 3
	fieldAgentVersion    = 4
)

var ErrEncoding = fmt.Errorf("identify: encoding error")

// Message is the one-shot response an identify stream's acceptor sends:
// it never expects anything back from the dialer.
type Message struct {
	ObservedAddr    multiaddr.Multiaddr
	ListenAddrs     []multiaddr.Multiaddr
	ProtocolVersion string
	AgentVersion    string
}

func encodeMessage(m Message) []byte {
	var buf []byte
	if m.ObservedAddr.Len() > 0 {
		buf = protoutil.Encode(buf, fieldObservedAddr, m.ObservedAddr.Bytes())
	}
	for _, a := range m.ListenAddrs {
		buf = protoutil.Encode(buf, fieldListenAddr, a.Bytes())
	}
	if m.ProtocolVersion != "" {
		buf = protoutil.Encode(buf, fieldProtocolVersion, []byte(m.ProtocolVersion))
	}
	if m.AgentVersion != "" {
		buf = protoutil.Encode(buf, fieldAgentVersion, []byte(m.AgentVersion))
	}
	return buf
}

func decodeMessage(buf []byte) (Message, error) {
	fields, err := protoutil.Decode(buf, MaxMessageSize)
	if err != nil {
		return Message{}, ErrEncoding
	}

	var m Message
	if raw, ok := protoutil.First(fields, fieldObservedAddr); ok {
		if addr, err := multiaddr.Decode(raw); err == nil {
			m.ObservedAddr = addr
		}
	}
	for _, raw := range protoutil.All(fields, fieldListenAddr) {
		addr, err := multiaddr.Decode(raw)
		if err != nil {
			continue
		}
		m.ListenAddrs = append(m.ListenAddrs, addr)
	}
	if raw, ok := protoutil.First(fields, fieldProtocolVersion); ok {
		m.ProtocolVersion = string(raw)
	}
	if raw, ok := protoutil.First(fields, fieldAgentVersion); ok {
		m.AgentVersion = string(raw)
	}
	return m, nil
}

// writeFrame/readFrame mirror the varint length-prefix framing
// dcutr.writeFrame/readFrame use, itself grounded on
// security/framing.go's writeFrame/readFrame.

func writeFrame(w muxer.MuxedStream, payload []byte) error {
	prefix := varint.Encode(uint64(len(payload)))
	if _, err := w.Write(prefix); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	length, err := varint.DecodeReader(r)
	if err != nil {
		return nil, ErrEncoding
	}
	if length > MaxMessageSize {
		return nil, ErrEncoding
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, ErrEncoding
	}
	return buf, nil
}

// Service answers identify streams and remembers, per local address,
// the most recent address a peer has reported observing us dial from.
type Service struct {
	protocolVersion string
	agentVersion    string
	listenAddrs     func() []multiaddr.Multiaddr

	mu       sync.Mutex
	observed map[string]multiaddr.Multiaddr
}

// New creates a Service. listenAddrs is called fresh on every accepted
// identify stream so the reported address list always reflects the
// caller's current listeners.
func New(protocolVersion, agentVersion string, listenAddrs func() []multiaddr.Multiaddr) *Service {
	return &Service{
		protocolVersion: protocolVersion,
		agentVersion:    agentVersion,
		listenAddrs:     listenAddrs,
		observed:        map[string]multiaddr.Multiaddr{},
	}
}

// HandleStream answers one inbound identify stream: it reports remoteAddr
// back as the dialer's observed address, alongside our own listen
// addresses and version strings. The stream is closed before returning.
func (s *Service) HandleStream(stream muxer.MuxedStream, remoteAddr multiaddr.Multiaddr) error {
	defer stream.Close()

	msg := Message{
		ObservedAddr:    remoteAddr,
		ListenAddrs:     s.listenAddrs(),
		ProtocolVersion: s.protocolVersion,
		AgentVersion:    s.agentVersion,
	}
	if err := writeFrame(stream, encodeMessage(msg)); err != nil {
		logger.Debugf("failed to send identify response: %v", err)
		return err
	}
	return nil
}

// Identify opens an identify stream over conn, reads the acceptor's
// response, and records its reported ObservedAddr against localAddr so
// a later ObservedAddrs call includes it.
func (s *Service) Identify(ctx context.Context, conn muxer.MuxedConnection, localAddr multiaddr.Multiaddr, timeout time.Duration) (Message, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	stream, err := conn.OpenStream(ctx)
	if err != nil {
		return Message{}, err
	}
	defer stream.Close()
	stream.SetProtocolID(ProtocolID)

	type result struct {
		msg Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		br := bufio.NewReader(stream)
		buf, err := readFrame(br)
		if err != nil {
			done <- result{err: err}
			return
		}
		msg, err := decodeMessage(buf)
		done <- result{msg: msg, err: err}
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return Message{}, r.err
		}
		if r.msg.ObservedAddr.Len() > 0 {
			s.recordObserved(localAddr, r.msg.ObservedAddr)
		}
		return r.msg, nil
	}
}

func (s *Service) recordObserved(localAddr, addr multiaddr.Multiaddr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observed[localAddr.String()] = addr
}

// ObservedAddrs returns every observed address this Service has
// recorded, one per local address it has been told about.
func (s *Service) ObservedAddrs() []multiaddr.Multiaddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]multiaddr.Multiaddr, 0, len(s.observed))
	for _, a := range s.observed {
		out = append(out, a)
	}
	return out
}
