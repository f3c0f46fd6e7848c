package mdns

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstanceFromAnswerName(t *testing.T) {
	instance, ok := instanceFromAnswerName("QmPeer." + serviceTypeDot)
	require.True(t, ok)
	require.Equal(t, "QmPeer", instance)

	_, ok = instanceFromAnswerName("unrelated.example.com.")
	require.False(t, ok)
}

func TestBuildAdvertisementShape(t *testing.T) {
	l := &localRecord{
		instance: "QmSvc",
		host:     "QmSvc.local.",
		port:     4001,
		ip:       []byte{192, 168, 1, 5},
		dnsaddrs: []string{"dnsaddr=/ip4/192.168.1.5/tcp/4001/p2p/QmSvc"},
	}

	msg, err := buildAdvertisement(l)
	require.NoError(t, err)
	require.NotEmpty(t, msg)
}

func TestClientTouchCreatesAndUpdates(t *testing.T) {
	var got remoteRecord
	c := &Client{
		cache:     make(map[string]*remoteRecord),
		hostIndex: make(map[string]string),
		pruneSize: initialPruneSize,
		onRecord: func(instance string, r remoteRecord) {
			got = r
		},
	}

	c.touch("QmSvc", 0, func(r *remoteRecord) { r.port = 4001 })
	require.Equal(t, uint16(4001), got.port)

	c.touch("QmSvc", 0, func(r *remoteRecord) { r.dnsaddrs = []string{"dnsaddr=x"} })
	require.Equal(t, []string{"dnsaddr=x"}, got.dnsaddrs)
	require.Equal(t, uint16(4001), got.port) // earlier field preserved
}
