// Package config handles configuration for the staging server,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the staging server.
//
// Fields:
//   - EndpointAddrGRPC / EndpointAddrHTTP: bind addresses of the gRPC and HTTP surfaces.
//   - StagingDir: directory holding staged payloads; created on start.
//   - RetentionPeriod: age after which the sweeper evicts a staged file.
//   - SweepInterval: how often the sweeper runs.
//   - ChunkSize: copy buffer for streamed writes.
//   - RelayEndpoints: ordered candidate base URLs for relays.
//   - RelayTimeout: per-attempt relay timeout.
//   - DatabaseDSN: PostgreSQL DSN (pgx) for the relay journal. Empty disables it.
//   - SecretKey: HMAC secret for session JWTs (HS256). Do not use test defaults in prod.
//   - AccessTokenValidityDuration: lifetime of issued session tokens.
//   - S3*: archive bucket settings. An empty S3Bucket leaves the archive off.
//   - LogFile: optional rotated log file, in addition to stdout.
type Config struct {
	EndpointAddrGRPC            string
	EndpointAddrHTTP            string
	StagingDir                  string
	RetentionPeriod             time.Duration
	SweepInterval               time.Duration
	ChunkSize                   int
	RelayEndpoints              []string
	RelayTimeout                time.Duration
	DatabaseDSN                 string
	SecretKey                   string
	AccessTokenValidityDuration time.Duration
	S3RootUser                  string
	S3RootPassword              string
	S3Bucket                    string
	S3Region                    string
	S3BaseEndpoint              string
	LogFile                     string
}

// LoadDefaults populates Config with development defaults.
// NOTE: the secret and S3 credentials are insecure and must be overridden.
func (c *Config) LoadDefaults() {
	c.EndpointAddrGRPC = ":50051"
	c.EndpointAddrHTTP = ":8080"
	c.StagingDir = "upload-staging"
	c.RetentionPeriod = 48 * time.Hour
	c.SweepInterval = 1 * time.Hour
	c.ChunkSize = 64 * 1024
	c.RelayEndpoints = nil
	c.RelayTimeout = 30 * time.Second
	c.DatabaseDSN = ""
	c.SecretKey = "secretKey"
	c.AccessTokenValidityDuration = 1 * time.Hour
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = ""
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.LogFile = ""
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
