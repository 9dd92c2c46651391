package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"moff.io/walletconnect/internal/walletconnect/uri"
	"moff.io/walletconnect/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, ioutil.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadSampleConfig(t *testing.T) {
	c, err := Load("config.yml")
	require.NoError(t, err)
	assert.Equal(t, RandomBridge, c.BridgeURL)
	assert.EqualValues(t, 1, c.ChainID)
	assert.Equal(t, 1, *c.LogLevel)
	assert.Equal(t, "moff", c.ClientMeta.Name)
	assert.Equal(t, ":8080", c.HTTP.Listen)
	assert.False(t, c.RedisCredential.Enabled())

	bridge, err := c.Bridge()
	require.NoError(t, err)
	assert.Equal(t, "https", bridge.Scheme)
	assert.True(t, strings.HasSuffix(bridge.Host, ".bridge.walletconnect.org"))
}

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, "chain_id: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, uri.DefaultBridgeURL, c.BridgeURL)
	assert.Nil(t, c.Chain())
	assert.Equal(t, 1, *c.LogLevel)
	assert.Equal(t, 5*time.Minute, c.RequestTimeout())
	assert.Equal(t, 5*time.Minute, c.HandshakeTimeout())
	assert.Equal(t, 64, c.MaxPendingRequests)
	assert.Equal(t, 10, c.PublishRate)
	assert.Equal(t, defaultUserAgent, c.UserAgent)
	assert.Equal(t, "moff", c.Meta().Name)
	assert.NotNil(t, c.Meta().Icons)
}

func TestLoadOverrides(t *testing.T) {
	c, err := Load(writeConfig(t, `
bridge_url: https://bridge.example.org
chain_id: 25
log_level: 0
request_timeout_sec: 30
handshake_timeout_sec: 90
redis:
  address: 127.0.0.1
  port: "6380"
  database: "2"
`))
	require.NoError(t, err)
	require.NotNil(t, c.Chain())
	assert.EqualValues(t, 25, *c.Chain())
	assert.Equal(t, 0, *c.LogLevel, "an explicit debug level is kept")
	assert.Equal(t, 30*time.Second, c.RequestTimeout())
	assert.Equal(t, 90*time.Second, c.HandshakeTimeout())
	assert.True(t, c.RedisCredential.Enabled())
	assert.Equal(t, "127.0.0.1:6380", c.RedisCredential.GetRedisAddress())
	assert.Equal(t, 2, c.RedisCredential.DB())

	bridge, err := c.Bridge()
	require.NoError(t, err)
	assert.Equal(t, "bridge.example.org", bridge.Host)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.True(t, os.IsNotExist(errors.Cause(err)))

	_, err = Load(writeConfig(t, "chain_id: [not a number\n"))
	assert.Error(t, err)

	c, err := Load(writeConfig(t, "bridge_url: not-a-url\n"))
	require.NoError(t, err)
	_, err = c.Bridge()
	assert.ErrorIs(t, err, uri.ErrInvalidBridge)
}
