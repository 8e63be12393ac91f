package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "127.0.0.1:50051", c.ServerEndpointAddr)
	assert.Empty(t, c.AccessToken)
	assert.Equal(t, time.Hour, c.TokenValidity)
	assert.Equal(t, 65536, c.ChunkSize)
	assert.Equal(t, 30*time.Second, c.CallTimeout)
}

func TestLoadConfig_JSONThenFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	t.Setenv("STAGEKEEPER_CONFIG", "")

	path := filepath.Join(t.TempDir(), "client.json")
	b, err := json.Marshal(map[string]any{
		"server_endpoint_addr": "json:1",
		"access_token":         "json-token",
		"call_timeout":         "5s",
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))

	os.Args = []string{"stagectl", "-c", path, "-a", "flag:2", "-t", "10", "list"}

	got := LoadConfig()
	want := &Config{
		ServerEndpointAddr: "flag:2",
		AccessToken:        "json-token",
		TokenValidity:      10 * time.Minute,
		ChunkSize:          65536,
		CallTimeout:        5 * time.Second,
	}
	assert.Empty(t, cmp.Diff(want, got))
}

func TestParseJson_Invalid(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	os.Args = []string{"stagectl", "-config", bad}

	require.Panics(t, func() { parseJson(&Config{}) })
}
