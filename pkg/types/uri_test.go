package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		in      string
		want    URI
		wantErr error
	}{
		{"tcp://127.0.0.1:8000", URI{SchemeTCP, "127.0.0.1:8000"}, nil},
		{"QUIC://[::1]:9000", URI{SchemeQUIC, "[::1]:9000"}, nil},
		{"loop://node-a", URI{SchemeLoopback, "node-a"}, nil},
		{"tcp://127.0.0.1", URI{}, ErrInvalidURI},
		{"127.0.0.1:8000", URI{}, ErrInvalidURI},
		{"udp://127.0.0.1:8000", URI{}, ErrUnsupportedScheme},
		{"tcp://", URI{}, ErrInvalidURI},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseURI(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "tcp://127.0.0.1:8000", MustParseURI("tcp://127.0.0.1:8000").String())
	assert.Panics(t, func() { MustParseURI("bogus") })
}

func TestException(t *testing.T) {
	err := NewException(CodeCouldNotDeliver, "target %s", "abc")
	assert.ErrorIs(t, err, ErrCouldNotDeliver)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "could not deliver: target abc", err.Error())

	wrapped := fmt.Errorf("call: %w", err)
	var ex *Exception
	require.True(t, errors.As(wrapped, &ex))
	assert.Equal(t, CodeCouldNotDeliver, ex.Code)

	assert.Equal(t, "code(99)", ErrorCode(99).String())
	assert.Equal(t, "timeout", (&Exception{Code: CodeTimeout}).Error())
}
