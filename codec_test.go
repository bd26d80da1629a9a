package ringhost

import (
	"testing"
	"time"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketTypeString(t *testing.T) {
	assert.Equal(t, "ringMembers", PacketRingMembers.String())
	assert.Equal(t, "statsUpdate", PacketStatsUpdate.String())
	assert.Equal(t, "UNKNOWN_CONSENSUS_PACKET", PacketType(0).String())
	assert.Equal(t, "UNKNOWN_CONSENSUS_PACKET", PacketType(99).String())
}

func TestEncodeDecode(t *testing.T) {
	sampledAt := time.Unix(0, 1641024000000000000)

	testCases := []struct {
		name string
		pkt  Packet
	}{
		{name: "ring members",
			pkt: Packet{
				Header: Header{Type: PacketRingMembers, Session: sid(1), Round: 3, Sender: mid(1)},
				Members: []RingMember{
					{ID: mid(1), Addr: "hostb:9000"},
					{ID: mid(2), Addr: "hostc:9000"},
				},
			},
		},
		{name: "collection start",
			pkt: Packet{
				Header:     Header{Type: PacketStatsCollectionStart, Session: sid(1), Round: 4, Sender: mid(1)},
				DeadlineMS: 2000,
			},
		},
		{name: "empty stats token",
			pkt: Packet{
				Header: Header{Type: PacketStatsUpdate, Session: sid(1), Round: 4, Sender: mid(1)},
			},
		},
		{name: "stats token mid relay",
			pkt: Packet{
				Header:   Header{Type: PacketStatsUpdate, Session: sid(1), Round: 4, Sender: mid(2)},
				HopCount: 2,
				Stats: []NodeStats{
					{MemberID: mid(2), UplinkMbps: 120.5, RTTMillis: 18, CPUHeadroomPct: 0.7, MemHeadroomMB: 4096, SampledAt: sampledAt},
					{MemberID: mid(3), UplinkMbps: 80, RTTMillis: 2.5, CPUHeadroomPct: 0.4, MemHeadroomMB: 1024, SampledAt: sampledAt},
				},
			},
		},
		{name: "election result",
			pkt: Packet{
				Header: Header{Type: PacketElectionResult, Session: sid(1), Round: 4, Sender: mid(1)},
				Winner: mid(2),
				Scores: []MemberScore{
					{MemberID: mid(1), Score: 10.25},
					{MemberID: mid(2), Score: 55.5},
				},
			},
		},
		{name: "ack",
			pkt: Packet{
				Header: Header{Type: PacketStatsAck, Session: sid(1), Round: 4, Sender: mid(3)},
				Member: mid(3),
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := Encode(tc.pkt)
			require.NoError(t, err)

			got, err := Decode(b)
			require.NoError(t, err)
			assert.Equal(t, tc.pkt, got)
		})
	}
}

func TestEncodeUnknownType(t *testing.T) {
	_, err := Encode(Packet{Header: Header{Type: 42}})
	jtest.Require(t, ErrMalformedPacket, err)
}

func TestDecodeShortHeader(t *testing.T) {
	_, err := Decode(nil)
	jtest.Require(t, ErrMalformedPacket, err)

	_, err = Decode(make([]byte, headerSize-1))
	jtest.Require(t, ErrMalformedPacket, err)
}

func TestDecodeUnknownType(t *testing.T) {
	b := make([]byte, headerSize+16)
	b[1] = 99 // type code with no decoder

	_, err := Decode(b)
	jtest.Require(t, ErrMalformedPacket, err)
}

func TestDecodeShortPayload(t *testing.T) {
	full, err := Encode(Packet{
		Header: Header{Type: PacketStatsAck, Session: sid(1), Round: 4, Sender: mid(3)},
		Member: mid(3),
	})
	require.NoError(t, err)

	// A packet shorter than the minimum payload for its type is rejected
	// before payload parsing.
	_, err = Decode(full[:headerSize+4])
	jtest.Require(t, ErrMalformedPacket, err)
}

func TestDecodeTruncatedStats(t *testing.T) {
	full, err := Encode(Packet{
		Header:   Header{Type: PacketStatsUpdate, Session: sid(1), Round: 4, Sender: mid(2)},
		HopCount: 1,
		Stats: []NodeStats{
			{MemberID: mid(2), UplinkMbps: 120, SampledAt: time.Unix(0, 1)},
		},
	})
	require.NoError(t, err)

	// Entry count promises one entry but the buffer ends early.
	_, err = Decode(full[:len(full)-8])
	jtest.Require(t, ErrMalformedPacket, err)
}

func TestDecodeRoundMismatch(t *testing.T) {
	full, err := Encode(Packet{
		Header: Header{Type: PacketStatsAck, Session: sid(1), Round: 4, Sender: mid(3)},
		Member: mid(3),
	})
	require.NoError(t, err)

	// Corrupt the echoed round id in the payload.
	full[headerSize+7] = 9

	_, err = Decode(full)
	jtest.Require(t, ErrMalformedPacket, err)
}
