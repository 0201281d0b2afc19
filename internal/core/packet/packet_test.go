package packet

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-muddle/internal/core/identity"
	"github.com/dep2p/go-muddle/pkg/types"
)

func randomPacket(r *rand.Rand) *Packet {
	p := &Packet{
		Service:   uint16(r.Intn(1 << 16)),
		Channel:   uint16(r.Intn(1 << 16)),
		Counter:   uint16(r.Intn(1 << 16)),
		Broadcast: r.Intn(2) == 0,
		Exchange:  r.Intn(2) == 0,
		Direct:    r.Intn(2) == 0,
		TTL:       uint8(r.Intn(256)),
		Payload:   make([]byte, r.Intn(300)),
	}
	r.Read(p.Sender[:])
	r.Read(p.Target[:])
	r.Read(p.Payload)
	if r.Intn(2) == 0 {
		p.Stamp = make([]byte, StampSize)
		r.Read(p.Stamp)
	}
	return p
}

func TestRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		p := randomPacket(r)
		data, err := Marshal(p)
		require.NoError(t, err)
		require.Len(t, data, p.WireSize())

		got, err := Decode(data)
		require.NoError(t, err)
		require.True(t, p.Equal(got), "第 %d 个数据包往返不一致", i)
	}
}

func TestWireSize(t *testing.T) {
	p := &Packet{Payload: []byte("hello")}
	assert.Equal(t, HeaderSize+5, p.WireSize())

	p.Stamp = make([]byte, StampSize)
	assert.Equal(t, HeaderSize+5+StampSize, p.WireSize())
	assert.Equal(t, FlagStamped, p.Flags()&FlagStamped)
}

func TestEncode_BufferTooSmall(t *testing.T) {
	p := &Packet{Payload: []byte("hello")}
	buf := bytes.Repeat([]byte{0xAA}, p.WireSize()-1)

	n, err := Encode(p, buf)
	assert.ErrorIs(t, err, ErrBufferTooSmall)
	assert.Zero(t, n)
	assert.Equal(t, bytes.Repeat([]byte{0xAA}, len(buf)), buf, "失败时不写入")

	_, err = Encode(&Packet{Stamp: []byte{1, 2, 3}}, make([]byte, 1024))
	assert.ErrorIs(t, err, ErrInvalidStamp)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(make([]byte, HeaderSize-1))
	assert.ErrorIs(t, err, ErrTruncatedHeader)

	p := &Packet{Payload: []byte("x"), Stamp: make([]byte, StampSize)}
	data, err := Marshal(p)
	require.NoError(t, err)

	_, err = Decode(data[:HeaderSize+StampSize-1])
	assert.ErrorIs(t, err, ErrTruncatedStamp)

	// 恰好一个签名区、负载为空
	got, err := Decode(data[:HeaderSize+StampSize])
	require.NoError(t, err)
	assert.Empty(t, got.Payload)
	assert.True(t, got.IsStamped())
}

func TestDecode_HeaderOnly(t *testing.T) {
	p := &Packet{Service: 1, Channel: 2, Counter: 3, TTL: 4, Exchange: true}
	data, err := Marshal(p)
	require.NoError(t, err)
	require.Len(t, data, HeaderSize)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, p.Equal(got))
	assert.NotNil(t, got.Payload)
}

func TestHeaderLayout(t *testing.T) {
	p := &Packet{Service: 0x0102, Channel: 0x0304, Counter: 0x0506, TTL: 9, Broadcast: true}
	p.Sender[0] = 0xAB
	p.Target[0] = 0xCD
	data, err := Marshal(p)
	require.NoError(t, err)

	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, FlagBroadcast, 9}, data[:8])
	assert.Equal(t, byte(0xAB), data[8])
	assert.Equal(t, byte(0xCD), data[8+types.AddressSize])
}

func TestSignVerify(t *testing.T) {
	id, err := identity.Generate()
	require.NoError(t, err)

	p := &Packet{Service: 5, Channel: 6, TTL: 40, Payload: []byte("signed")}
	Sign(p, id)
	assert.Equal(t, id.Address(), p.Sender)
	assert.True(t, Verify(p, identity.Verify))

	t.Run("TTL 变化不影响签名", func(t *testing.T) {
		c := p.Clone()
		c.TTL--
		assert.True(t, Verify(c, identity.Verify))
	})

	t.Run("负载篡改", func(t *testing.T) {
		c := p.Clone()
		c.Payload[0] ^= 1
		assert.False(t, Verify(c, identity.Verify))
	})

	t.Run("编解码后仍有效", func(t *testing.T) {
		data, err := Marshal(p)
		require.NoError(t, err)
		got, err := Decode(data)
		require.NoError(t, err)
		assert.True(t, Verify(got, identity.Verify))
	})

	t.Run("未签名", func(t *testing.T) {
		assert.False(t, Verify(&Packet{}, identity.Verify))
	})
}
