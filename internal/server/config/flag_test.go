package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "all flags", args: []string{"cmd",
			"-a", "127.0.0.1:9090", "-h", "127.0.0.1:8081", "-dir", "/var/stage",
			"-ret", "72h", "-sweep", "10m", "-chunk", "4096",
			"-relay", "http://a:1,http://b:2", "-relay", "http://c:3", "-rt", "5s",
			"-d", "db", "-s", "secret", "-t", "15",
			"-u", "user", "-p", "password", "-b", "bucket", "-g", "us-west-1", "-e", "http://endpoint",
			"-log", "/var/log/stage.log",
		},
			expected: &Config{
				EndpointAddrGRPC:            "127.0.0.1:9090",
				EndpointAddrHTTP:            "127.0.0.1:8081",
				StagingDir:                  "/var/stage",
				RetentionPeriod:             72 * time.Hour,
				SweepInterval:               10 * time.Minute,
				ChunkSize:                   4096,
				RelayEndpoints:              []string{"http://a:1", "http://b:2", "http://c:3"},
				RelayTimeout:                5 * time.Second,
				DatabaseDSN:                 "db",
				SecretKey:                   "secret",
				AccessTokenValidityDuration: 15 * time.Minute,
				S3RootUser:                  "user",
				S3RootPassword:              "password",
				S3Bucket:                    "bucket",
				S3Region:                    "us-west-1",
				S3BaseEndpoint:              "http://endpoint",
				LogFile:                     "/var/log/stage.log",
			}},
		{name: "foreign flags are ignored", args: []string{"cmd", "-c", "cfg.json", "-v", "-a", ":1"},
			expected: &Config{EndpointAddrGRPC: ":1"}},
		{name: "bad duration panics", args: []string{"cmd", "-ret", "forever"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origArgs := os.Args
			t.Cleanup(func() { os.Args = origArgs })
			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(tt.expected, config))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
