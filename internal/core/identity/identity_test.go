package identity

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-muddle/pkg/types"
)

func TestIdentity_SignVerify(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)
	assert.False(t, id.Address().IsZero())

	msg := []byte("packet bytes")
	sig := id.Sign(msg)
	assert.Len(t, sig, SignatureSize)
	assert.True(t, Verify(id.Address(), msg, sig))
	assert.False(t, Verify(id.Address(), []byte("other"), sig))
	assert.False(t, Verify(id.Address(), msg, sig[:10]))

	other, err := Generate()
	require.NoError(t, err)
	assert.False(t, Verify(other.Address(), msg, sig))
}

func TestFromSeed(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)
	a, err := FromSeed(seed)
	require.NoError(t, err)
	b, err := FromSeed(seed)
	require.NoError(t, err)
	assert.Equal(t, a.Address(), b.Address())

	_, err = FromSeed([]byte{1})
	assert.ErrorIs(t, err, ErrInvalidKeySize)
	_, err = FromPrivateKey(make([]byte, 3))
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "node.pem")

	id, err := Generate()
	require.NoError(t, err)
	require.NoError(t, id.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, id.Address(), loaded.Address())
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.pem"))
	assert.ErrorIs(t, err, ErrKeyNotFound)

	bad := filepath.Join(dir, "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not pem"), 0o600))
	_, err = Load(bad)
	assert.ErrorIs(t, err, ErrInvalidPEM)
}

func TestLoadOrGenerate(t *testing.T) {
	t.Run("内存身份", func(t *testing.T) {
		id, err := LoadOrGenerate("", true)
		require.NoError(t, err)
		assert.NotEqual(t, types.ZeroAddress, id.Address())

		_, err = LoadOrGenerate("", false)
		assert.ErrorIs(t, err, ErrNoIdentity)
	})

	t.Run("生成后复用", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "node.pem")
		first, err := LoadOrGenerate(path, true)
		require.NoError(t, err)
		second, err := LoadOrGenerate(path, true)
		require.NoError(t, err)
		assert.Equal(t, first.Address(), second.Address())
	})

	t.Run("不允许生成", func(t *testing.T) {
		_, err := LoadOrGenerate(filepath.Join(t.TempDir(), "node.pem"), false)
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})
}
