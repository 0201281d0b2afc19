package connection

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-muddle/pkg/types"
)

func TestRegister_EnterLeaveIdempotent(t *testing.T) {
	r := NewRegister()
	c := NewMockConnection(Outbound)

	var left []types.Handle
	r.OnLeave(func(h types.Handle, _ types.Address) { left = append(left, h) })

	assert.True(t, r.Enter(c))
	assert.False(t, r.Enter(c))
	assert.Equal(t, 1, r.Len())

	got, ok := r.Lookup(c.Handle())
	require.True(t, ok)
	assert.Same(t, c, got)

	assert.True(t, r.Leave(c.Handle()))
	assert.False(t, r.Leave(c.Handle()))
	assert.Equal(t, []types.Handle{c.Handle()}, left, "离开回调只触发一次")
	assert.Zero(t, r.Len())
}

func TestRegister_LookupSkipsDead(t *testing.T) {
	r := NewRegister()
	c := NewMockConnection(Inbound)
	r.Enter(c)
	_ = c.Close()

	_, ok := r.Lookup(c.Handle())
	assert.False(t, ok)
}

func TestRegister_Address(t *testing.T) {
	r := NewRegister()
	c := NewMockConnection(Inbound)
	r.Enter(c)

	_, ok := r.Address(c.Handle())
	assert.False(t, ok)

	addr := types.Address{1, 2, 3}
	r.UpdateAddress(c.Handle(), addr)
	got, ok := r.Address(c.Handle())
	require.True(t, ok)
	assert.Equal(t, addr, got)

	var leftAddr types.Address
	r.OnLeave(func(_ types.Handle, a types.Address) { leftAddr = a })
	r.Leave(c.Handle())
	assert.Equal(t, addr, leftAddr)
}

func TestRegister_BroadcastSkipsDead(t *testing.T) {
	r := NewRegister()
	alive := NewMockConnection(Outbound)
	dead := NewMockConnection(Outbound)
	failing := NewMockConnection(Outbound)
	failing.SendFunc = func([]byte) error { return errors.New("queue full") }

	r.Enter(alive)
	r.Enter(dead)
	r.Enter(failing)
	_ = dead.Close()

	assert.Equal(t, 1, r.Broadcast([]byte("hi")))
	assert.Equal(t, [][]byte{[]byte("hi")}, alive.Sent())
	assert.Empty(t, dead.Sent())
}

func TestRegister_CloseAll(t *testing.T) {
	r := NewRegister()
	conns := []*MockConnection{NewMockConnection(Inbound), NewMockConnection(Outbound)}
	for _, c := range conns {
		r.Enter(c)
	}

	require.NoError(t, r.CloseAll())
	assert.Zero(t, r.Len())
	for _, c := range conns {
		assert.False(t, c.IsAlive())
	}
}

func TestRegister_Concurrent(t *testing.T) {
	r := NewRegister()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := NewMockConnection(Inbound)
			for j := 0; j < 50; j++ {
				r.Enter(c)
				r.Broadcast([]byte("x"))
				_ = r.Handles()
				r.Leave(c.Handle())
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, r.Len())
}
