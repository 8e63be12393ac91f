package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/stagekeeper/internal/flagx"
	"github.com/dmitrijs2005/stagekeeper/internal/timex"
)

// JsonConfig is the on-disk form of Config. Durations accept either strings
// such as "48h" or integer nanoseconds. Pointers and zero values mark keys
// absent from the file, which leave the current value untouched.
type JsonConfig struct {
	EndpointAddrGRPC            string          `json:"endpoint_addr_grpc"`
	EndpointAddrHTTP            string          `json:"endpoint_addr_http"`
	StagingDir                  string          `json:"staging_dir"`
	RetentionPeriod             *timex.Duration `json:"retention_period"`
	SweepInterval               *timex.Duration `json:"sweep_interval"`
	ChunkSize                   int             `json:"chunk_size"`
	RelayEndpoints              []string        `json:"relay_endpoints"`
	RelayTimeout                *timex.Duration `json:"relay_timeout"`
	DatabaseDSN                 *string         `json:"database_dsn"`
	SecretKey                   string          `json:"secret_key"`
	AccessTokenValidityDuration *timex.Duration `json:"access_token_validity_duration"`
	S3RootUser                  string          `json:"s3_root_user"`
	S3RootPassword              string          `json:"s3_root_password"`
	S3Bucket                    string          `json:"s3_bucket"`
	S3Region                    string          `json:"s3_region"`
	S3BaseEndpoint              string          `json:"s3_base_endpoint"`
	LogFile                     string          `json:"log_file"`
}

// parseJson overlays values from the JSON file named by -c/-config (or
// $STAGEKEEPER_CONFIG) onto config. Without a file nothing changes.
// An unreadable or malformed file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFile(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.StagingDir, c.StagingDir)
	setDuration(&config.RetentionPeriod, c.RetentionPeriod)
	setDuration(&config.SweepInterval, c.SweepInterval)
	if c.ChunkSize > 0 {
		config.ChunkSize = c.ChunkSize
	}
	if c.RelayEndpoints != nil {
		config.RelayEndpoints = append([]string(nil), c.RelayEndpoints...)
	}
	setDuration(&config.RelayTimeout, c.RelayTimeout)
	if c.DatabaseDSN != nil {
		config.DatabaseDSN = *c.DatabaseDSN
	}
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogFile, c.LogFile)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
