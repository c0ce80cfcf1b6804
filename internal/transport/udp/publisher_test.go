// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pitchtrack/internal/event"
	"pitchtrack/internal/log"
	"pitchtrack/internal/note"
)

func TestMain(m *testing.M) {
	log.SetLevel(log.LevelFatal)
	goleak.VerifyTestMain(m)
}

func detected(seq uint64, hz float64) event.PitchDetected {
	n, _ := note.NewMapper(note.DefaultReferenceHz).Map(hz)
	return event.Detected("s", seq, time.Unix(0, 1_700_000_000_123_456_789), hz, 0.95, n)
}

func TestEncodeLayout(t *testing.T) {
	var buf bytes.Buffer
	e := detected(42, 415.30)
	require.NoError(t, Encode(&buf, e))

	b := buf.Bytes()
	require.Len(t, b, PacketSize)

	assert.Equal(t, uint32(42), binary.BigEndian.Uint32(b[0:4]))
	assert.Equal(t, int64(1_700_000_000_123_456_789), int64(binary.BigEndian.Uint64(b[4:12])))
	assert.InDelta(t, 415.30, math.Float32frombits(binary.BigEndian.Uint32(b[12:16])), 1e-3)
	assert.InDelta(t, 0.95, math.Float32frombits(binary.BigEndian.Uint32(b[16:20])), 1e-6)
	assert.InDelta(t, e.Cents, math.Float32frombits(binary.BigEndian.Uint32(b[20:24])), 1e-4)
	assert.Equal(t, int8(4), int8(b[24]))
	assert.Equal(t, int8(11), int8(b[25]), "G# is index 11 counting from A")
}

func TestEncodeNoPitch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, event.NoPitch("s", 3, time.Unix(1, 0))))

	b := buf.Bytes()
	require.Len(t, b, PacketSize)
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(b[0:4]))
	assert.Equal(t, make([]byte, 12), b[12:24], "frequency, clarity and cents are zero")
	assert.Equal(t, int8(0), int8(b[24]))
	assert.Equal(t, NoNote, int8(b[25]))
}

func TestPublisherSendsDatagrams(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer listener.Close()

	sender, err := NewSender(listener.LocalAddr().String())
	require.NoError(t, err)

	p, err := NewPublisher(sender, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "udp", p.Name())

	for seq, hz := range []float64{220, 440, 880} {
		require.NoError(t, p.Publish(detected(uint64(seq), hz)))
	}

	buf := make([]byte, 64)
	for seq, wantOctave := range []int8{3, 4, 5} {
		require.NoError(t, listener.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, _, err := listener.ReadFromUDP(buf)
		require.NoError(t, err)
		require.Equal(t, PacketSize, n)
		assert.Equal(t, uint32(seq), binary.BigEndian.Uint32(buf[0:4]))
		assert.Equal(t, wantOctave, int8(buf[24]))
		assert.Equal(t, int8(0), int8(buf[25]))
	}

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.NoError(t, p.Publish(detected(9, 440)), "publish after close is a no-op")
	assert.Error(t, sender.Send([]byte{1}), "publisher closes its sender")
}

func TestNewPublisherRequiresSender(t *testing.T) {
	_, err := NewPublisher(nil, 0, nil)
	assert.Error(t, err)
}

func TestNewSenderBadAddress(t *testing.T) {
	_, err := NewSender("not-an-address")
	assert.Error(t, err)
}
