// Package protocol defines the payloads the log server adds around a
// subscriber's snapshot and how a subscriber tells them apart from the
// records it relays.
//
// Every frame on the wire is a frame.Encode envelope. Payloads are checked in
// this order:
//
//  1. a CBOR map: the producer's options, routed to the options hook
//  2. the CBOR text InitDoneMarker: the snapshot is fully enqueued
//  3. a CBOR 2-array [InitMarker, total]: announces the snapshot size
//  4. anything else: an opaque data record
package protocol

import (
	"fmt"

	"github.com/dgnsrekt/logcast/internal/codec"
	"github.com/dgnsrekt/logcast/internal/frame"
)

const (
	// InitMarker is the first element of the INIT control payload.
	InitMarker = "logcast/v1/init"
	// InitDoneMarker is the whole INIT_DONE control payload.
	InitDoneMarker = "logcast/v1/init_done"
)

// CBOR major types inspected by Classify.
const (
	majorText  = 3
	majorArray = 4
	majorMap   = 5

	// Initial byte of a definite-length array of two items.
	pairHeader = 0x82
)

// Kind identifies what a payload carries.
type Kind int

const (
	KindData Kind = iota
	KindOptions
	KindInit
	KindInitDone
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindOptions:
		return "options"
	case KindInit:
		return "init"
	case KindInitDone:
		return "init_done"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is a classified payload.
type Message struct {
	Kind Kind
	// Total is the announced snapshot size for KindInit.
	Total uint64
	// Options is set for KindOptions.
	Options map[string]any
	// Payload is the raw payload for every kind.
	Payload []byte
}

var initDonePayload = mustMarshal(InitDoneMarker)

// InitFrame returns the framed INIT(total) control message.
func InitFrame(total uint64) []byte {
	return frame.Encode(mustMarshal([]any{InitMarker, total}))
}

// InitDoneFrame returns the framed INIT_DONE control message.
func InitDoneFrame() []byte {
	return frame.Encode(initDonePayload)
}

// Classify decides what payload carries. Anything that is not exactly one
// of the control or options shapes is data, including a payload that starts
// like a CBOR map but does not decode as a string-keyed one.
func Classify(payload []byte) Message {
	msg := Message{Kind: KindData, Payload: payload}
	if len(payload) == 0 {
		return msg
	}

	switch payload[0] >> 5 {
	case majorMap:
		if !codec.Wellformed(payload) {
			break
		}
		var options map[string]any
		if err := codec.Unmarshal(payload, &options); err != nil {
			break
		}
		msg.Kind = KindOptions
		msg.Options = options

	case majorText:
		if string(payload) == string(initDonePayload) {
			msg.Kind = KindInitDone
		}

	case majorArray:
		if payload[0] != pairHeader {
			break
		}
		if total, ok := decodeInit(payload); ok {
			msg.Kind = KindInit
			msg.Total = total
		}
	}
	return msg
}

func decodeInit(payload []byte) (uint64, bool) {
	var pair []codec.RawMessage
	if err := codec.Unmarshal(payload, &pair); err != nil || len(pair) != 2 {
		return 0, false
	}
	var marker string
	if err := codec.Unmarshal(pair[0], &marker); err != nil || marker != InitMarker {
		return 0, false
	}
	var total uint64
	if err := codec.Unmarshal(pair[1], &total); err != nil {
		return 0, false
	}
	return total, true
}

func mustMarshal(v any) []byte {
	data, err := codec.Marshal(v)
	if err != nil {
		panic("protocol: encoding control payload: " + err.Error())
	}
	return data
}
