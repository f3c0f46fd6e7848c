// Package mdns implements the mDNS/DNS-SD observation source (spec.md
// §4.13): a peer advertises its addresses as a DNS-SD service instance
// under a TXT-record `dnsaddr=<multiaddr>` attribute, and browses for
// other instances of the same service type, turning each resolved
// instance into a PeerObservation emitted onto a broadcaster.
//
// The wire-level client below is a generalization of the teacher's
// internal/ice/mdns package: the same dual IPv4/IPv6 multicast sockets,
// read loop, and record-cache-with-pruning shape, but carrying full
// DNS-SD (PTR/SRV/TXT/A/AAAA) messages instead of ephemeral ICE-candidate
// hostname resolution.
package mdns

import (
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/dns/dnsmessage"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/lanikai/libp2p-core-lite/internal/log"
)

var logger = log.WithTag("mdns")

const (
	// High bit of CLASS in questions and resource records, repurposed by
	// mDNS to request/indicate a unicast response (RFC 6762 §5.4, §10.2).
	classMask = 1 << 15

	// serviceTypeDot is the DNS-SD service type this package advertises
	// and browses under, always dot-terminated.
	serviceTypeDot = "_libp2p._udp.local."

	initialPruneSize = 8
)

var (
	mdnsGroupAddr4 = &net.UDPAddr{IP: net.ParseIP("224.0.0.251"), Port: 5353}
	mdnsGroupAddr6 = &net.UDPAddr{IP: net.ParseIP("ff02::fb"), Port: 5353}
)

// remoteRecord accumulates what's known about one DNS-SD instance learned
// from the network. The PTR answer supplies the instance name; SRV, TXT,
// and A/AAAA answers arrive independently (in any order, possibly across
// several messages) and fill in the rest.
type remoteRecord struct {
	instance string
	dnsaddrs []string
	host     string
	port     uint16
	ip       net.IP
	expires  time.Time
}

// localRecord is this node's own advertisement, answered whenever a
// matching PTR question arrives and re-announced periodically.
type localRecord struct {
	instance string
	host     string
	port     uint16
	ip       net.IP
	dnsaddrs []string
}

// Client implements the RFC 6762/6763 multicast wire protocol: sending and
// answering PTR queries for one service type, and caching what it learns.
// It knows nothing about peer ids or multiaddrs; Service layers that
// semantics on top.
type Client struct {
	conn4, conn6 *net.UDPConn
	stopped      bool

	mu        sync.Mutex
	local     *localRecord
	cache     map[string]*remoteRecord
	hostIndex map[string]string // SRV target host -> instance
	pruneSize int

	onRecord func(instance string, r remoteRecord)
}

// NewClient binds the IPv4 and IPv6 mDNS multicast sockets and starts the
// read loops. onRecord is invoked, from the read loop's goroutine,
// whenever a cached remote record gains new information.
func NewClient(onRecord func(instance string, r remoteRecord)) (*Client, error) {
	conn4, err := net.ListenMulticastUDP("udp4", nil, mdnsGroupAddr4)
	if err != nil {
		return nil, err
	}
	conn6, err := net.ListenMulticastUDP("udp6", nil, mdnsGroupAddr6)
	if err != nil {
		conn4.Close()
		return nil, err
	}

	c := &Client{
		conn4:     conn4,
		conn6:     conn6,
		cache:     make(map[string]*remoteRecord),
		hostIndex: make(map[string]string),
		pruneSize: initialPruneSize,
		onRecord:  onRecord,
	}

	// Multicast loopback lets a single host exercise advertise+browse
	// against itself, which is how the tests exercise this package.
	if err := ipv4.NewPacketConn(conn4).SetMulticastLoopback(true); err != nil {
		c.Close()
		return nil, err
	}
	if err := ipv6.NewPacketConn(conn6).SetMulticastLoopback(true); err != nil {
		c.Close()
		return nil, err
	}

	go c.readLoop(conn4)
	go c.readLoop(conn6)

	return c, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	if c.conn4 != nil {
		c.conn4.Close()
	}
	if c.conn6 != nil {
		c.conn6.Close()
	}
	return nil
}

// SetLocalRecord installs (or clears, with nil) the record answered to
// incoming PTR questions and re-announced by Service's announce loop.
func (c *Client) SetLocalRecord(l *localRecord) {
	c.mu.Lock()
	c.local = l
	c.mu.Unlock()
}

func (c *Client) readLoop(conn *net.UDPConn) {
	buf := make([]byte, 9000)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if n > 0 {
			c.handleMessage(buf[:n], src, conn)
		}
		if err != nil {
			c.mu.Lock()
			stopped := c.stopped
			c.mu.Unlock()
			if !stopped {
				logger.Warnf("read error on %s: %v", conn.LocalAddr(), err)
			}
			return
		}
	}
}

func (c *Client) handleMessage(msg []byte, src *net.UDPAddr, conn *net.UDPConn) {
	var p dnsmessage.Parser
	hdr, err := p.Start(msg)
	if err != nil {
		logger.Debugf("invalid DNS message from %s: %v", src, err)
		return
	}
	if hdr.OpCode != 0 {
		// Ignore non-zero OPCODE: RFC 6762 §18.3.
		return
	}

	for {
		q, err := p.Question()
		if err == dnsmessage.ErrSectionDone {
			break
		}
		if err != nil {
			logger.Debugf("invalid question: %v", err)
			break
		}
		c.handleQuestion(&q, src, conn)
	}

	for {
		a, err := p.Answer()
		if err == dnsmessage.ErrSectionDone {
			break
		}
		if err != nil {
			logger.Debugf("invalid answer: %v", err)
			break
		}
		c.handleAnswer(&a)
	}
}

func (c *Client) handleQuestion(q *dnsmessage.Question, src *net.UDPAddr, conn *net.UDPConn) {
	name := q.Name.String()
	if name != serviceTypeDot {
		return
	}

	c.mu.Lock()
	l := c.local
	c.mu.Unlock()
	if l == nil {
		return
	}

	dst := src
	if (q.Class & classMask) == 0 {
		dst = conn.LocalAddr().(*net.UDPAddr)
	}
	if err := c.sendAdvertisement(l, dst, conn); err != nil {
		logger.Warnf("failed to answer query: %v", err)
	}
}

func (c *Client) handleAnswer(a *dnsmessage.Resource) {
	if (a.Header.Class &^ classMask) != dnsmessage.ClassINET {
		return
	}
	name := a.Header.Name.String()
	ttl := time.Duration(a.Header.TTL) * time.Second

	switch body := a.Body.(type) {
	case *dnsmessage.PTRResource:
		if name != serviceTypeDot {
			return
		}
		instance, ok := instanceFromAnswerName(body.PTR.String())
		if !ok {
			return
		}
		c.touch(instance, ttl, func(r *remoteRecord) {})

	case *dnsmessage.SRVResource:
		instance, ok := instanceFromAnswerName(name)
		if !ok {
			return
		}
		host := body.Target.String()
		c.touch(instance, ttl, func(r *remoteRecord) {
			r.host = host
			r.port = body.Port
			c.mu.Lock()
			c.hostIndex[host] = instance
			c.mu.Unlock()
		})

	case *dnsmessage.TXTResource:
		instance, ok := instanceFromAnswerName(name)
		if !ok {
			return
		}
		txt := append([]string(nil), body.TXT...)
		c.touch(instance, ttl, func(r *remoteRecord) {
			r.dnsaddrs = txt
		})

	case *dnsmessage.AResource:
		c.touchByHost(name, ttl, net.IP(body.A[:]))

	case *dnsmessage.AAAAResource:
		c.touchByHost(name, ttl, net.IP(body.AAAA[:]))

	default:
		return
	}

	c.maybePruneCache()
}

// touch fetches or creates the cache entry for instance, applies mutate
// under the cache lock, and reports the updated snapshot.
func (c *Client) touch(instance string, ttl time.Duration, mutate func(*remoteRecord)) {
	c.mu.Lock()
	r, found := c.cache[instance]
	if !found {
		r = &remoteRecord{instance: instance}
		c.cache[instance] = r
	}
	r.expires = time.Now().Add(ttl)
	mutate(r)
	snapshot := *r
	snapshot.dnsaddrs = append([]string(nil), r.dnsaddrs...)
	snapshot.ip = append(net.IP(nil), r.ip...)
	c.mu.Unlock()

	if c.onRecord != nil {
		c.onRecord(instance, snapshot)
	}
}

func (c *Client) touchByHost(host string, ttl time.Duration, ip net.IP) {
	c.mu.Lock()
	instance, ok := c.hostIndex[host]
	c.mu.Unlock()
	if !ok {
		return
	}
	c.touch(instance, ttl, func(r *remoteRecord) {
		r.ip = append(net.IP(nil), ip...)
	})
}

func instanceFromAnswerName(name string) (string, bool) {
	suffix := "." + serviceTypeDot
	if !strings.HasSuffix(name, suffix) {
		return "", false
	}
	return name[:len(name)-len(suffix)], true
}

// sendQuery multicasts a PTR question for the service type on both
// sockets, requesting a unicast response.
func (c *Client) sendQuery() error {
	svc, err := dnsmessage.NewName(serviceTypeDot)
	if err != nil {
		return err
	}

	b := dnsmessage.NewBuilder(nil, dnsmessage.Header{ID: 0})
	b.EnableCompression()
	b.StartQuestions()
	if err := b.Question(dnsmessage.Question{
		Name:  svc,
		Type:  dnsmessage.TypePTR,
		Class: dnsmessage.ClassINET | classMask,
	}); err != nil {
		return err
	}
	msg, err := b.Finish()
	if err != nil {
		return err
	}

	if _, err := c.conn4.WriteTo(msg, mdnsGroupAddr4); err != nil {
		return err
	}
	if _, err := c.conn6.WriteTo(msg, mdnsGroupAddr6); err != nil {
		return err
	}
	return nil
}

// sendAdvertisement sends the full PTR+SRV+TXT+A/AAAA answer chain for l
// to dst over conn; dst is either the requester (unicast) or the
// multicast group (unsolicited re-announcement).
func (c *Client) sendAdvertisement(l *localRecord, dst *net.UDPAddr, conn *net.UDPConn) error {
	msg, err := buildAdvertisement(l)
	if err != nil {
		return err
	}
	_, err = conn.WriteTo(msg, dst)
	return err
}

// announce sends an unsolicited re-announcement of l to both multicast
// groups, for passive listeners that missed the original query response.
func (c *Client) announce(l *localRecord) error {
	msg, err := buildAdvertisement(l)
	if err != nil {
		return err
	}
	if _, err := c.conn4.WriteTo(msg, mdnsGroupAddr4); err != nil {
		return err
	}
	if _, err := c.conn6.WriteTo(msg, mdnsGroupAddr6); err != nil {
		return err
	}
	return nil
}

func buildAdvertisement(l *localRecord) ([]byte, error) {
	svc, err := dnsmessage.NewName(serviceTypeDot)
	if err != nil {
		return nil, err
	}
	instance, err := dnsmessage.NewName(l.instance + "." + serviceTypeDot)
	if err != nil {
		return nil, err
	}
	host, err := dnsmessage.NewName(l.host)
	if err != nil {
		return nil, err
	}

	const ttl = 120 // seconds; Service re-announces well before this lapses

	b := dnsmessage.NewBuilder(nil, dnsmessage.Header{
		Response:      true,
		Authoritative: true,
	})
	b.EnableCompression()
	if err := b.StartAnswers(); err != nil {
		return nil, err
	}

	if err := b.PTRResource(
		dnsmessage.ResourceHeader{Name: svc, Class: dnsmessage.ClassINET, TTL: ttl},
		dnsmessage.PTRResource{PTR: instance},
	); err != nil {
		return nil, err
	}
	if err := b.SRVResource(
		dnsmessage.ResourceHeader{Name: instance, Class: dnsmessage.ClassINET, TTL: ttl},
		dnsmessage.SRVResource{Priority: 0, Weight: 0, Port: l.port, Target: host},
	); err != nil {
		return nil, err
	}
	if err := b.TXTResource(
		dnsmessage.ResourceHeader{Name: instance, Class: dnsmessage.ClassINET, TTL: ttl},
		dnsmessage.TXTResource{TXT: l.dnsaddrs},
	); err != nil {
		return nil, err
	}

	if ip4 := l.ip.To4(); ip4 != nil {
		var res dnsmessage.AResource
		copy(res.A[:], ip4)
		if err := b.AResource(
			dnsmessage.ResourceHeader{Name: host, Class: dnsmessage.ClassINET, TTL: ttl}, res,
		); err != nil {
			return nil, err
		}
	} else if l.ip != nil {
		var res dnsmessage.AAAAResource
		copy(res.AAAA[:], l.ip.To16())
		if err := b.AAAAResource(
			dnsmessage.ResourceHeader{Name: host, Class: dnsmessage.ClassINET, TTL: ttl}, res,
		); err != nil {
			return nil, err
		}
	}

	return b.Finish()
}

// maybePruneCache mirrors the teacher's amortized pruning: only sweep once
// the cache has grown past the last-seen live size plus headroom.
func (c *Client) maybePruneCache() {
	c.mu.Lock()
	grown := len(c.cache) > c.pruneSize
	c.mu.Unlock()
	if grown {
		go c.prune()
	}
}

func (c *Client) prune() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, r := range c.cache {
		if now.After(r.expires) {
			delete(c.cache, key)
			delete(c.hostIndex, r.host)
		}
	}
	c.pruneSize = len(c.cache) + initialPruneSize
}
