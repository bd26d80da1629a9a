package ringhost

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// PacketType is the 16-bit wire type code of a consensus packet.
type PacketType uint16

const (
	// PacketRingMembers carries the current ring snapshot, broadcast by
	// the session owner whenever membership changes.
	PacketRingMembers PacketType = iota + 1
	// PacketStatsCollectionStart opens a new collection round.
	PacketStatsCollectionStart
	// PacketStatsUpdate is the accumulator token relayed around the ring,
	// growing by one stats entry per hop.
	PacketStatsUpdate
	// PacketElectionResult carries the winner and the full score vector,
	// fanned out by the initiator once elected.
	PacketElectionResult
	// PacketStatsAck confirms receipt of an election result.
	PacketStatsAck
)

// String converts a PacketType to a string.
func (t PacketType) String() string {
	switch t {
	case PacketRingMembers:
		return "ringMembers"
	case PacketStatsCollectionStart:
		return "statsCollectionStart"
	case PacketStatsUpdate:
		return "statsUpdate"
	case PacketElectionResult:
		return "ringElectionResult"
	case PacketStatsAck:
		return "statsAck"
	default:
		return "UNKNOWN_CONSENSUS_PACKET"
	}
}

// headerSize is the fixed wire size of the common packet header:
// type (2) + session id (16) + round id (8) + sender id (16).
const headerSize = 2 + 16 + 8 + 16

const (
	statsEntrySize = 16 + 4*8 + 8 // id + four float64 metrics + sample time
	scoreEntrySize = 16 + 8       // id + float64 score
)

// minPayload is the minimum payload size per packet type. Buffers shorter
// than the minimum for their type are rejected before payload parsing.
var minPayload = map[PacketType]int{
	PacketRingMembers:          2,      // member count
	PacketStatsCollectionStart: 8 + 8,  // round id + deadline millis
	PacketStatsUpdate:          2 + 2,  // hop count + entry count
	PacketElectionResult:       16 + 2, // winner id + entry count
	PacketStatsAck:             8 + 16, // round id + member id
}

// Header is the common prefix of every consensus packet.
type Header struct {
	Type    PacketType
	Session SessionID
	Round   uint64
	Sender  MemberID
}

// MemberScore is one entry of an election score vector.
type MemberScore struct {
	MemberID MemberID
	Score    float64
}

// Packet is the decoded form of a consensus packet. The Type tag selects
// which payload fields are meaningful:
//
//	PacketRingMembers:          Members
//	PacketStatsCollectionStart: DeadlineMS
//	PacketStatsUpdate:          HopCount, Stats
//	PacketElectionResult:       Winner, Scores
//	PacketStatsAck:             Member
type Packet struct {
	Header

	Members    []RingMember
	DeadlineMS uint64
	HopCount   uint16
	Stats      []NodeStats
	Winner     MemberID
	Scores     []MemberScore
	Member     MemberID
}

// Encode serialises a packet to its wire form. All integers are big-endian.
func Encode(p Packet) ([]byte, error) {
	if p.Type.String() == "UNKNOWN_CONSENSUS_PACKET" {
		return nil, errors.Wrap(ErrMalformedPacket, "encode unknown type",
			j.KV("type_code", uint16(p.Type)))
	}

	b := make([]byte, 0, headerSize+64)
	b = appendUint16(b, uint16(p.Type))
	b = append(b, p.Session[:]...)
	b = appendUint64(b, p.Round)
	b = append(b, p.Sender[:]...)

	switch p.Type {
	case PacketRingMembers:
		b = appendUint16(b, uint16(len(p.Members)))
		for _, m := range p.Members {
			b = append(b, m.ID[:]...)
			b = appendUint16(b, uint16(len(m.Addr)))
			b = append(b, m.Addr...)
		}
	case PacketStatsCollectionStart:
		b = appendUint64(b, p.Round)
		b = appendUint64(b, p.DeadlineMS)
	case PacketStatsUpdate:
		b = appendUint16(b, p.HopCount)
		b = appendUint16(b, uint16(len(p.Stats)))
		for _, s := range p.Stats {
			b = appendStats(b, s)
		}
	case PacketElectionResult:
		b = append(b, p.Winner[:]...)
		b = appendUint16(b, uint16(len(p.Scores)))
		for _, sc := range p.Scores {
			b = append(b, sc.MemberID[:]...)
			b = appendFloat64(b, sc.Score)
		}
	case PacketStatsAck:
		b = appendUint64(b, p.Round)
		b = append(b, p.Member[:]...)
	}

	return b, nil
}

// Decode parses a wire buffer into a packet. It returns ErrMalformedPacket
// if the buffer is shorter than the header, carries an unknown type code,
// or has a payload shorter than the minimum size for its type.
func Decode(b []byte) (Packet, error) {
	if len(b) < headerSize {
		return Packet{}, errors.Wrap(ErrMalformedPacket, "short header",
			j.KV("size", len(b)))
	}

	r := reader{buf: b}
	var p Packet
	p.Type = PacketType(r.uint16())
	r.bytes(p.Session[:])
	p.Round = r.uint64()
	r.bytes(p.Sender[:])

	min, ok := minPayload[p.Type]
	if !ok {
		return Packet{}, errors.Wrap(ErrMalformedPacket, "unknown packet type",
			j.MKV{"type_code": uint16(p.Type), "type": p.Type.String()})
	}
	if r.remaining() < min {
		return Packet{}, errors.Wrap(ErrMalformedPacket, "short payload", j.MKV{
			"type": p.Type.String(), "size": r.remaining(), "min": min,
		})
	}

	switch p.Type {
	case PacketRingMembers:
		n := int(r.uint16())
		for i := 0; i < n; i++ {
			var m RingMember
			if r.remaining() < 16+2 {
				return Packet{}, truncatedErr(p.Type, r.remaining())
			}
			r.bytes(m.ID[:])
			addrLen := int(r.uint16())
			if r.remaining() < addrLen {
				return Packet{}, truncatedErr(p.Type, r.remaining())
			}
			m.Addr = string(r.take(addrLen))
			p.Members = append(p.Members, m)
		}
	case PacketStatsCollectionStart:
		tokenRound := r.uint64()
		if tokenRound != p.Round {
			return Packet{}, errors.Wrap(ErrMalformedPacket, "round mismatch", j.MKV{
				"header_round": p.Round, "payload_round": tokenRound,
			})
		}
		p.DeadlineMS = r.uint64()
	case PacketStatsUpdate:
		p.HopCount = r.uint16()
		n := int(r.uint16())
		if r.remaining() < n*statsEntrySize {
			return Packet{}, truncatedErr(p.Type, r.remaining())
		}
		for i := 0; i < n; i++ {
			p.Stats = append(p.Stats, r.stats())
		}
	case PacketElectionResult:
		r.bytes(p.Winner[:])
		n := int(r.uint16())
		if r.remaining() < n*scoreEntrySize {
			return Packet{}, truncatedErr(p.Type, r.remaining())
		}
		for i := 0; i < n; i++ {
			var sc MemberScore
			r.bytes(sc.MemberID[:])
			sc.Score = r.float64()
			p.Scores = append(p.Scores, sc)
		}
	case PacketStatsAck:
		tokenRound := r.uint64()
		if tokenRound != p.Round {
			return Packet{}, errors.Wrap(ErrMalformedPacket, "round mismatch", j.MKV{
				"header_round": p.Round, "payload_round": tokenRound,
			})
		}
		r.bytes(p.Member[:])
	}

	return p, nil
}

func truncatedErr(t PacketType, remaining int) error {
	return errors.Wrap(ErrMalformedPacket, "truncated payload", j.MKV{
		"type": t.String(), "remaining": remaining,
	})
}

func appendUint16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendUint64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendFloat64(b []byte, v float64) []byte {
	return appendUint64(b, math.Float64bits(v))
}

func appendStats(b []byte, s NodeStats) []byte {
	b = append(b, s.MemberID[:]...)
	b = appendFloat64(b, s.UplinkMbps)
	b = appendFloat64(b, s.RTTMillis)
	b = appendFloat64(b, s.CPUHeadroomPct)
	b = appendFloat64(b, s.MemHeadroomMB)
	b = appendUint64(b, uint64(s.SampledAt.UnixNano()))
	return b
}

// reader is a bounds-checked cursor over a wire buffer. Callers check
// remaining() before multi-field reads; a short read past the end returns
// zero values rather than panicking.
type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) take(n int) []byte {
	if r.remaining() < n {
		r.off = len(r.buf)
		return make([]byte, n)
	}
	ret := r.buf[r.off : r.off+n]
	r.off += n
	return ret
}

func (r *reader) bytes(dst []byte) {
	copy(dst, r.take(len(dst)))
}

func (r *reader) uint16() uint16 {
	return binary.BigEndian.Uint16(r.take(2))
}

func (r *reader) uint64() uint64 {
	return binary.BigEndian.Uint64(r.take(8))
}

func (r *reader) float64() float64 {
	return math.Float64frombits(r.uint64())
}

func (r *reader) stats() NodeStats {
	var s NodeStats
	r.bytes(s.MemberID[:])
	s.UplinkMbps = r.float64()
	s.RTTMillis = r.float64()
	s.CPUHeadroomPct = r.float64()
	s.MemHeadroomMB = r.float64()
	s.SampledAt = time.Unix(0, int64(r.uint64()))
	return s
}
