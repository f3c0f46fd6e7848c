package webrtcdirect

import (
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// fixedUfrag and fixedPwd are the listener's well-known ICE credentials.
// Real signaling is not used (there is no SDP offer/answer exchanged over
// the wire): the dialer already knows these from the convention, the same
// way it already knows the listener's DTLS fingerprint from the address's
// /certhash component.
const (
	fixedUfrag = "libp2p-webrtc-direct"
	fixedPwd   = "libp2p-webrtc-direct-pwd"
)

// sdpFingerprint renders a SHA-256 certificate digest in SDP's colon-
// separated uppercase hex form.
func sdpFingerprint(digest []byte) string {
	parts := make([]string, len(digest))
	for i, b := range digest {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return "sha-256 " + strings.Join(parts, ":")
}

// synthesizeRemoteSDP builds the minimal, data-channel-only session
// description this package uses in place of a real signaling exchange.
// The a=setup line is actpass for an offer, passive for an answer carrying
// the listener's fixed ufrag, and active for any other answer;
// ufrag/pwd/fingerprint/ip/port describe the remote side this description
// stands in for.
func synthesizeRemoteSDP(sdpType webrtc.SDPType, ufrag, pwd, fingerprint, ip string, port uint16) webrtc.SessionDescription {
	sdp := "v=0\r\n" +
		"o=- 0 0 IN IP4 " + ip + "\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"a=group:BUNDLE 0\r\n" +
		"a=msid-semantic: WMS\r\n" +
		"m=application " + fmt.Sprint(port) + " UDP/DTLS/SCTP webrtc-datachannel\r\n" +
		"c=IN IP4 " + ip + "\r\n" +
		"a=ice-ufrag:" + ufrag + "\r\n" +
		"a=ice-pwd:" + pwd + "\r\n" +
		"a=ice-options:ice2\r\n" +
		"a=fingerprint:" + fingerprint + "\r\n"
	if sdpType == webrtc.SDPTypeOffer {
		sdp += "a=setup:actpass\r\n"
	} else if ufrag == fixedUfrag {
		sdp += "a=setup:passive\r\n"
	} else {
		sdp += "a=setup:active\r\n"
	}
	sdp += "a=mid:0\r\n" +
		"a=sctp-port:5000\r\n" +
		"a=max-message-size:262144\r\n"

	return webrtc.SessionDescription{Type: sdpType, SDP: sdp}
}
