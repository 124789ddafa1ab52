// Package codec implements the broker's wire framing: newline-delimited
// UTF-8 JSON objects, one packet per line.
package codec

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Type discriminates the packet kinds carried over the wire.
type Type string

const (
	TypeConnect    Type = "CONNECT"
	TypeConnAck    Type = "CONNACK"
	TypeSubscribe  Type = "SUBSCRIBE"
	TypeSubAck     Type = "SUBACK"
	TypePublish    Type = "PUBLISH"
	TypePubAck     Type = "PUBACK"
	TypePubRec     Type = "PUBREC"
	TypePubRel     Type = "PUBREL"
	TypePubComp    Type = "PUBCOMP"
	TypeDisconnect Type = "DISCONNECT"
)

// ErrMalformedPacket is returned for invalid framing: bad JSON, a missing
// type field, an unrecognized type, or a type whose required fields are
// absent. The caller MUST close the connection on this error.
var ErrMalformedPacket = errors.New("codec: malformed packet")

// Will describes a Last-Will-and-Testament payload attached to a CONNECT.
type Will struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
	Retain  bool   `json:"retain"`
}

// Packet is the union of every field used by any packet type. Only the
// fields relevant to Type are populated; others are left at zero value.
type Packet struct {
	Type Type `json:"type"`

	// CONNECT
	ClientID string `json:"client_id,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	LastWill *Will  `json:"last_will,omitempty"`

	// CONNACK
	Success bool `json:"success"`

	// SUBSCRIBE / SUBACK / PUBLISH
	Topic string `json:"topic,omitempty"`
	QoS   int    `json:"qos,omitempty"`

	// PUBLISH
	Payload string `json:"payload,omitempty"`
	Retain  bool   `json:"retain,omitempty"`

	// PUBACK / PUBREC / PUBREL / PUBCOMP / PUBLISH(qos>0)
	ID uint16 `json:"id,omitempty"`
}

// Validate checks that a decoded packet carries the fields its type
// requires, per the table in the protocol specification.
func (p *Packet) Validate() error {
	switch p.Type {
	case TypeConnect:
		if p.ClientID == "" {
			return errors.Wrap(ErrMalformedPacket, "CONNECT missing client_id")
		}
	case TypeConnAck:
		// success is a bool, always present in JSON (zero value valid)
	case TypeSubscribe:
		if p.Topic == "" {
			return errors.Wrap(ErrMalformedPacket, "SUBSCRIBE missing topic")
		}
	case TypeSubAck:
		if p.Topic == "" {
			return errors.Wrap(ErrMalformedPacket, "SUBACK missing topic")
		}
	case TypePublish:
		if p.Topic == "" {
			return errors.Wrap(ErrMalformedPacket, "PUBLISH missing topic")
		}
		if (p.QoS == 1 || p.QoS == 2) && p.ID == 0 {
			return errors.Wrap(ErrMalformedPacket, "PUBLISH with qos>0 missing id")
		}
	case TypePubAck, TypePubRec, TypePubRel, TypePubComp:
		if p.ID == 0 {
			return errors.Wrapf(ErrMalformedPacket, "%s missing id", p.Type)
		}
	case TypeDisconnect:
		// no required fields
	default:
		return errors.Wrapf(ErrMalformedPacket, "unknown packet type %q", p.Type)
	}
	return nil
}

// Decode parses a single line of JSON into a Packet, validating the
// type-specific required fields.
func Decode(line []byte) (*Packet, error) {
	var p Packet
	if err := json.Unmarshal(line, &p); err != nil {
		return nil, errors.Wrap(ErrMalformedPacket, err.Error())
	}
	if p.Type == "" {
		return nil, errors.Wrap(ErrMalformedPacket, "missing type field")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Encode serializes a packet to its wire form, without the trailing
// newline (the Writer appends it).
func Encode(p *Packet) ([]byte, error) {
	return json.Marshal(p)
}
