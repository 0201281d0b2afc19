package rpc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-muddle/pkg/lib/promise"
	"github.com/dep2p/go-muddle/pkg/types"
)

func TestSerializer_Sequence(t *testing.T) {
	var addr types.Address
	addr[0], addr[31] = 0xAB, 0x01

	enc := NewEncoder().
		Bytes([]byte{1, 2, 3}).
		Text("hello").
		Uint64(1 << 40).
		Int64(-42).
		Bool(true).
		Address(addr)

	d := NewDecoder(enc.Encoded())
	assert.Equal(t, enc.Size(), d.Remaining())

	b, err := d.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, b)

	s, err := d.Text()
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	u, err := d.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<40), u)

	i, err := d.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(-42), i)

	ok, err := d.Bool()
	require.NoError(t, err)
	assert.True(t, ok)

	a, err := d.Address()
	require.NoError(t, err)
	assert.Equal(t, addr, a)

	assert.Equal(t, enc.Size(), d.Consumed())
	assert.Zero(t, d.Remaining())
}

func TestDecoder_TypeMismatchDoesNotAdvance(t *testing.T) {
	d := NewDecoder(NewEncoder().Text("x").Encoded())

	_, err := d.Uint64()
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.Zero(t, d.Consumed())

	s, err := d.Text()
	require.NoError(t, err)
	assert.Equal(t, "x", s)
}

func TestDecoder_Truncated(t *testing.T) {
	full := NewEncoder().Bytes([]byte("payload")).Encoded()

	d := NewDecoder(full[:len(full)-2])
	_, err := d.Bytes()
	assert.ErrorIs(t, err, ErrTruncated)
	assert.Zero(t, d.Consumed())

	_, err = NewDecoder(nil).Bool()
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecoder_AddressLength(t *testing.T) {
	// 用地址类型标记写入 3 个字节
	enc := NewEncoder()
	enc.buf = append(enc.buf, byte(typeAddress<<3|2), 3, 1, 2, 3)

	d := NewDecoder(enc.Encoded())
	_, err := d.Address()
	assert.ErrorIs(t, err, types.ErrInvalidAddress)
	assert.Zero(t, d.Consumed())
}

func TestCall_Marshal(t *testing.T) {
	args := NewEncoder().Text("a").Uint64(9).Encoded()
	c := &call{exchangeID: 77, protocol: 3, function: 4, args: args}

	got, err := unmarshalCall(c.marshal())
	require.NoError(t, err)
	assert.Equal(t, c, got)

	_, err = unmarshalCall(NewEncoder().Uint64(1).Encoded())
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestReply_Marshal(t *testing.T) {
	tests := []struct {
		name string
		in   *reply
	}{
		{"ok", okReply(5, []byte("value"))},
		{"empty value", okReply(6, []byte{})},
		{"error", errorReply(7, types.NewException(types.CodeUnknownFunction, "protocol 1 function 9"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := unmarshalReply(tt.in.marshal())
			require.NoError(t, err)
			assert.Equal(t, tt.in.exchangeID, got.exchangeID)
			assert.Equal(t, tt.in.kind, got.kind)
			assert.Equal(t, tt.in.err, got.err)
			if tt.in.kind == ReplyOK {
				assert.Equal(t, string(tt.in.value), string(got.value))
			}
		})
	}
}

func TestReply_UnknownKind(t *testing.T) {
	_, err := unmarshalReply(NewEncoder().Uint64(1).Uint64(9).Encoded())
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestReply_ErrorCodeRange(t *testing.T) {
	encoded := func(code uint64) []byte {
		return NewEncoder().Uint64(3).Uint64(uint64(ReplyError)).Uint64(code).Text("boom").Encoded()
	}

	r, err := unmarshalReply(encoded(math.MaxUint32))
	require.NoError(t, err)
	assert.Equal(t, types.ErrorCode(math.MaxUint32), r.err.Code)

	_, err = unmarshalReply(encoded(math.MaxUint32 + 1))
	assert.ErrorIs(t, err, ErrValueRange)

	p := promise.New()
	(&Client{}).resolve(p, 3, encoded(1<<40|uint64(types.CodeTimeout)))
	assert.ErrorIs(t, p.Err(), types.ErrSerialization)
	assert.NotErrorIs(t, p.Err(), types.ErrTimeout, "高位不能被截断")
}
