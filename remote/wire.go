package remote

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Kind identifies a request/response pair.
type Kind uint8

const (
	KindHello Kind = iota
	KindAdapter
	KindMonitor
	KindMonitorRelease
	KindMonitorCapabilities
	KindMonitorVcpGet
	KindMonitorVcpSet
)

func (k Kind) String() string {
	switch k {
	case KindHello:
		return "Hello"
	case KindAdapter:
		return "Adapter"
	case KindMonitor:
		return "Monitor"
	case KindMonitorRelease:
		return "MonitorRelease"
	case KindMonitorCapabilities:
		return "MonitorCapabilities"
	case KindMonitorVcpGet:
		return "MonitorVcpGet"
	case KindMonitorVcpSet:
		return "MonitorVcpSet"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Status is the outcome the executor reports for a request.
type Status uint8

const (
	StatusSuccess Status = iota
	StatusNotFound
	StatusError
	StatusInvalidVcpCode
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusNotFound:
		return "NotFound"
	case StatusError:
		return "Error"
	case StatusInvalidVcpCode:
		return "InvalidVcpCode"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Envelope is the unit exchanged on a Stream. Body holds the CBOR encoding of the
// message matching Kind and Response.
type Envelope struct {
	Kind      Kind            `cbor:"1,keyasint"`
	RequestID uint32          `cbor:"2,keyasint,omitempty"`
	Response  bool            `cbor:"3,keyasint,omitempty"`
	Status    Status          `cbor:"4,keyasint,omitempty"`
	Body      cbor.RawMessage `cbor:"5,keyasint,omitempty"`
}

// Hello is the first message an executor sends on a new stream.
type Hello struct {
	SessionID string `cbor:"1,keyasint"`
}

type AdapterRequest struct {
	DeviceName string `cbor:"1,keyasint"`
}

type AdapterResponse struct {
	AdapterID uint64 `cbor:"1,keyasint"`
}

// MonitorIdentity selects a monitor by the identity found in its EDID.
type MonitorIdentity struct {
	VendorID     uint16 `cbor:"1,keyasint"`
	ProductID    uint16 `cbor:"2,keyasint"`
	IDSerial     uint32 `cbor:"3,keyasint"`
	SerialNumber string `cbor:"4,keyasint,omitempty"`
}

type MonitorRequest struct {
	AdapterID uint64          `cbor:"1,keyasint"`
	Identity  MonitorIdentity `cbor:"2,keyasint"`
}

type MonitorResponse struct {
	Handle uint32 `cbor:"1,keyasint"`
}

type MonitorReleaseRequest struct {
	Handle uint32 `cbor:"1,keyasint"`
}

type MonitorReleaseResponse struct{}

type MonitorCapabilitiesRequest struct {
	Handle uint32 `cbor:"1,keyasint"`
}

type MonitorCapabilitiesResponse struct {
	Utf8Capabilities []byte `cbor:"1,keyasint"`
}

type MonitorVcpGetRequest struct {
	Handle  uint32 `cbor:"1,keyasint"`
	VcpCode byte   `cbor:"2,keyasint"`
}

type MonitorVcpGetResponse struct {
	Current   uint16 `cbor:"1,keyasint"`
	Maximum   uint16 `cbor:"2,keyasint"`
	Temporary bool   `cbor:"3,keyasint,omitempty"`
}

type MonitorVcpSetRequest struct {
	Handle  uint32 `cbor:"1,keyasint"`
	VcpCode byte   `cbor:"2,keyasint"`
	Value   uint16 `cbor:"3,keyasint"`
}

type MonitorVcpSetResponse struct{}

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}

	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{MaxNestedLevels: 8}.DecMode()
	if err != nil {
		panic(err)
	}

	return dm
}

// marshalEnvelope encodes body and wraps it in an envelope. A nil body leaves Body empty.
func marshalEnvelope(env Envelope, body any) ([]byte, error) {
	if body != nil {
		raw, err := encMode.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", env.Kind, err)
		}
		env.Body = raw
	}

	return encMode.Marshal(env)
}

func unmarshalEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	return env, nil
}

func (e *Envelope) decodeBody(v any) error {
	if err := decMode.Unmarshal(e.Body, v); err != nil {
		return fmt.Errorf("%w: %s body: %w", ErrMalformedMessage, e.Kind, err)
	}

	return nil
}
