package dcutr

import (
	"github.com/lanikai/libp2p-core-lite/event"
	"github.com/lanikai/libp2p-core-lite/multiaddr"
)

// Event is emitted onto a Config's Events broadcaster at the documented
// points of the DCUtR state machine (spec.md §4.14 step 10, §8 scenarios
// C/D): one attempt-started/failed pair per Initiate retry, an
// address-exchange marker once CONNECT/SYNC completes, and a terminal
// success or exhaustion event.
type Event interface{ isDcutrEvent() }

// HolePunchAttemptStarted marks the beginning of one Initiate attempt.
type HolePunchAttemptStarted struct{ Attempt, Max int }

// AddressExchangeCompleted marks a completed CONNECT/SYNC exchange for
// the current attempt, before any candidate dial begins.
type AddressExchangeCompleted struct{ Attempt int }

// DirectConnectionEstablished marks a successful direct dial, replacing
// the relayed connection.
type DirectConnectionEstablished struct {
	Attempt int
	Addr    multiaddr.Multiaddr
}

// HolePunchAttemptFailed marks one failed attempt, whether or not it will
// be retried.
type HolePunchAttemptFailed struct{ Attempt, Max int }

// HolePunchFailed marks the retry loop's final exhaustion.
type HolePunchFailed struct{ Reason string }

func (HolePunchAttemptStarted) isDcutrEvent()     {}
func (AddressExchangeCompleted) isDcutrEvent()    {}
func (DirectConnectionEstablished) isDcutrEvent() {}
func (HolePunchAttemptFailed) isDcutrEvent()      {}
func (HolePunchFailed) isDcutrEvent()             {}

func emitEvent(b *event.Broadcaster[Event], e Event) {
	if b != nil {
		b.Emit(e)
	}
}
