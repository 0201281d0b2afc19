package config

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, uint8(40), cfg.Router.DefaultTTL)
	assert.Equal(t, 30*time.Second, cfg.Dispatcher.ExchangeTimeout.Duration())
	assert.Equal(t, 2500*time.Millisecond, cfg.Network.MaintenanceInterval.Duration())
	assert.Equal(t, 2048*time.Second, cfg.PeerList.MaxBackoff.Duration())
}

func TestConfig_ValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"监听地址无效", func(c *Config) { c.Network.Listen = []string{"udp://x:1"} }, ErrInvalidListen},
		{"对端地址无效", func(c *Config) { c.Network.Peers = []string{"nope"} }, ErrInvalidPeer},
		{"TTL 过小", func(c *Config) { c.Router.DefaultTTL = 2 }, ErrInvalidValue},
		{"强制签名但不签名", func(c *Config) { c.Router.SignPackets = false; c.Router.RequireStamps = true }, ErrInvalidValue},
		{"超时为零", func(c *Config) { c.Dispatcher.ExchangeTimeout = 0 }, ErrInvalidValue},
		{"退避上限过小", func(c *Config) { c.PeerList.MaxBackoff = Duration(time.Millisecond) }, ErrInvalidValue},
		{"退避倍数过小", func(c *Config) { c.PeerList.Multiplier = 0.5 }, ErrInvalidValue},
		{"RPC 并发为零", func(c *Config) { c.RPC.MaxConcurrentCalls = 0 }, ErrInvalidValue},
		{"帧大小为零", func(c *Config) { c.Connection.MaxFrameSize = 0 }, ErrInvalidValue},
		{"指标命名空间为空", func(c *Config) { c.Metrics.Namespace = "" }, ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.wantErr)
		})
	}

	var nilCfg *Config
	assert.ErrorIs(t, nilCfg.Validate(), ErrNilConfig)
}

func TestFromJSON(t *testing.T) {
	data := []byte(`{
		"network": {"listen": ["quic://127.0.0.1:9000"], "peers": ["tcp://10.0.0.1:8100"], "maintenance_interval": "1s"},
		"dispatcher": {"exchange_timeout": "5s"},
		"router": {"relay_enabled": false}
	}`)

	cfg, err := FromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, []string{"quic://127.0.0.1:9000"}, cfg.Network.Listen)
	assert.Equal(t, []string{"tcp://10.0.0.1:8100"}, cfg.Network.Peers)
	assert.Equal(t, 5*time.Second, cfg.Dispatcher.ExchangeTimeout.Duration())
	assert.False(t, cfg.Router.RelayEnabled)
	assert.Equal(t, uint8(40), cfg.Router.DefaultTTL, "未出现的字段保持默认")

	_, err = FromJSON([]byte(`{"dispatcher": {"exchange_timeout": "soon"}}`))
	assert.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "muddle.json")
	cfg := NewConfig()
	cfg.Network.Peers = []string{"tcp://192.168.1.2:8100"}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, 90*time.Second, d.Duration())

	require.NoError(t, json.Unmarshal([]byte(`1000`), &d))
	assert.Equal(t, time.Microsecond, d.Duration())

	assert.Error(t, json.Unmarshal([]byte(`true`), &d))

	out, err := json.Marshal(Duration(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(out))
}

func TestApplyPreset(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, ApplyPreset(cfg, PresetLeaf))
	assert.False(t, cfg.Router.RelayEnabled)
	assert.False(t, cfg.Router.KademliaRouting)

	require.NoError(t, ApplyPreset(cfg, PresetTest))
	assert.Equal(t, []string{"tcp://127.0.0.1:0"}, cfg.Network.Listen)
	require.NoError(t, cfg.Validate())

	assert.ErrorIs(t, ApplyPreset(cfg, "mobile"), ErrUnknownPreset)
	assert.ErrorIs(t, ApplyPreset(nil, PresetRelay), ErrNilConfig)
}
