package mdns

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lanikai/libp2p-core-lite/event"
	"github.com/lanikai/libp2p-core-lite/multiaddr"
	"github.com/lanikai/libp2p-core-lite/peer"
)

// ObservationKind mirrors spec.md §3's peer observation kind enum.
type ObservationKind int

const (
	KindAnnouncement ObservationKind = iota
	KindReachable
	KindUnreachable
)

func (k ObservationKind) String() string {
	switch k {
	case KindAnnouncement:
		return "announcement"
	case KindReachable:
		return "reachable"
	case KindUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// PeerObservation is the value type emitted onto the broadcaster
// (spec.md §3): a subject peer reported by an observer, with an ordered
// list of address hints and a producer-local sequence number.
type PeerObservation struct {
	Subject        peer.ID
	Observer       peer.ID
	Kind           ObservationKind
	Hints          []multiaddr.Multiaddr
	TimestampMs    int64
	SequenceNumber uint64
}

var (
	ErrNotStarted     = fmt.Errorf("mdns: not started")
	ErrAlreadyStarted = fmt.Errorf("mdns: already started")
	ErrInvalidPeerID  = fmt.Errorf("mdns: invalid peer id")
)

// BrowserError wraps the last error observed from the mDNS wire protocol,
// returned by Find when the browser is unhealthy and the requested peer
// has no cached observation (spec.md §7, `last_browser_error`).
type BrowserError struct{ Inner error }

func (e *BrowserError) Error() string { return fmt.Sprintf("mdns: browser error: %v", e.Inner) }
func (e *BrowserError) Unwrap() error { return e.Inner }

const (
	defaultTTL           = 2 * time.Minute
	announceInterval     = defaultTTL / 2
	defaultQueryInterval = 10 * time.Second
)

// Service advertises the local node under a DNS-SD service instance and
// browses for other instances, emitting a PeerObservation for each one
// resolved (spec.md §4.13). It does not open libp2p connections itself.
type Service struct {
	client *Client
	local  peer.ID

	// fallbackInstance is used as the service instance label when local
	// is empty, per spec.md's "or a random p2p-<uuid>" clause.
	fallbackInstance string

	broadcaster *event.Broadcaster[PeerObservation]
	seq         atomic.Uint64

	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu             sync.Mutex
	lastBrowserErr error
	known          map[peer.ID][]multiaddr.Multiaddr
}

// New constructs a Service for localID, binding the mDNS multicast
// sockets immediately. localID may be empty, in which case Start, when
// given addresses to advertise, requires every one of them to already
// carry a /p2p component.
func New(localID peer.ID, broadcaster *event.Broadcaster[PeerObservation]) (*Service, error) {
	s := &Service{
		local:            localID,
		fallbackInstance: "p2p-" + uuid.NewString(),
		broadcaster:      broadcaster,
		known:            make(map[peer.ID][]multiaddr.Multiaddr),
	}

	client, err := NewClient(s.handleRemoteRecord)
	if err != nil {
		return nil, err
	}
	s.client = client
	return s, nil
}

// Start begins browsing for other service instances and, if localAddrs
// is non-empty, advertising them under this node's instance name. It is
// idempotent-guarded: calling Start twice without an intervening Stop
// reports ErrAlreadyStarted.
func (s *Service) Start(ctx context.Context, localAddrs []multiaddr.Multiaddr) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if len(localAddrs) > 0 {
		if err := s.advertise(localAddrs); err != nil {
			s.started.Store(false)
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(2)
	go s.announceLoop(ctx)
	go s.browseLoop(ctx)
	return nil
}

// Stop halts advertising and browsing and closes the underlying sockets.
func (s *Service) Stop() error {
	if !s.started.CompareAndSwap(true, false) {
		return ErrNotStarted
	}
	s.cancel()
	s.wg.Wait()
	return s.client.Close()
}

// Find returns the most recently observed address hints for target. If
// target has never been observed and the browser is currently unhealthy,
// it returns the remembered last_browser_error instead of an empty list
// (spec.md §7).
func (s *Service) Find(target peer.ID) ([]multiaddr.Multiaddr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hints, ok := s.known[target]; ok {
		return hints, nil
	}
	if s.lastBrowserErr != nil {
		return nil, &BrowserError{Inner: s.lastBrowserErr}
	}
	return nil, nil
}

func (s *Service) instanceLabel() string {
	if s.local != "" {
		return sanitizeLabel(s.local.Base58())
	}
	return s.fallbackInstance
}

// sanitizeLabel strips characters a DNS label can't carry. Peer-id
// base58 and the "p2p-<uuid>" fallback are already label-safe; this
// guards against an unexpected future id encoding.
func sanitizeLabel(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// advertise builds the local DNS-SD record from addrs (appending a /p2p
// component to any address missing one, per spec.md §4.13) and installs
// it on the client. The record is answered on query and re-announced by
// announceLoop until Stop.
func (s *Service) advertise(addrs []multiaddr.Multiaddr) error {
	if s.local == "" {
		for _, a := range addrs {
			if _, ok := a.PeerID(); !ok {
				return fmt.Errorf("mdns: address %s has no /p2p component and no local peer id to append", a)
			}
		}
	}

	instance := s.instanceLabel()
	dnsaddrs := make([]string, 0, len(addrs))
	var ip net.IP
	var port uint16
	for _, a := range addrs {
		full := a
		if _, ok := a.PeerID(); !ok {
			full = multiaddr.WithPeer(a, s.local)
		}
		dnsaddrs = append(dnsaddrs, "dnsaddr="+full.String())

		if ip == nil {
			if host, ok := a.IPAddress(); ok {
				if parsed := net.ParseIP(host); parsed != nil {
					if p, ok := a.TCPPort(); ok {
						ip, port = parsed, p
					} else if p, ok := a.UDPPort(); ok {
						ip, port = parsed, p
					}
				}
			}
		}
	}
	if ip == nil {
		ip = net.IPv4zero
	}

	s.client.SetLocalRecord(&localRecord{
		instance: instance,
		host:     instance + ".local.",
		port:     port,
		ip:       ip,
		dnsaddrs: dnsaddrs,
	})
	return nil
}

func (s *Service) announceLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(announceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.client.mu.Lock()
			l := s.client.local
			s.client.mu.Unlock()
			if l == nil {
				continue
			}
			if err := s.client.announce(l); err != nil {
				logger.Warnf("re-announce failed: %v", err)
			}
		}
	}
}

func (s *Service) browseLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(defaultQueryInterval)
	defer ticker.Stop()

	s.query()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.query()
		}
	}
}

func (s *Service) query() {
	if err := s.client.sendQuery(); err != nil {
		logger.Warnf("mdns query failed: %v", err)
		s.mu.Lock()
		s.lastBrowserErr = err
		s.mu.Unlock()
		return
	}
	s.mu.Lock()
	s.lastBrowserErr = nil
	s.mu.Unlock()
}

// handleRemoteRecord turns one updated remoteRecord into, at most, one
// PeerObservation, applying spec.md §4.13's dnsaddr-preferred /
// fallback-reconstruction / silent-skip rules.
func (s *Service) handleRemoteRecord(instance string, r remoteRecord) {
	subject, decodeErr := peer.Decode(instance)
	identified := decodeErr == nil
	var subjectID peer.ID
	if identified {
		subjectID = subject
	}

	var hints []multiaddr.Multiaddr

	if len(r.dnsaddrs) > 0 {
		for _, raw := range r.dnsaddrs {
			value, ok := strings.CutPrefix(raw, "dnsaddr=")
			if !ok {
				continue
			}
			addr, err := multiaddr.Parse(value)
			if err != nil {
				continue
			}
			addrPeer, ok := addr.PeerID()
			if !ok {
				continue
			}
			if identified && addrPeer != subjectID {
				continue
			}
			if !identified {
				subjectID, identified = addrPeer, true
			}
			hints = append(hints, addr)
		}
	} else if identified && r.ip != nil {
		addr, err := multiaddr.TCP(r.ip.String(), r.port)
		if err == nil {
			hints = append(hints, multiaddr.WithPeer(addr, subjectID))
		}
	}

	if len(hints) == 0 {
		return
	}

	s.mu.Lock()
	s.known[subjectID] = hints
	s.mu.Unlock()

	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Emit(PeerObservation{
		Subject:        subjectID,
		Observer:       s.local,
		Kind:           KindReachable,
		Hints:          hints,
		TimestampMs:    time.Now().UnixMilli(),
		SequenceNumber: s.seq.Add(1),
	})
}
