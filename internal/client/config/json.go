package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/stagekeeper/internal/flagx"
	"github.com/dmitrijs2005/stagekeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
type JsonConfig struct {
	ServerEndpointAddr string          `json:"server_endpoint_addr"`
	AccessToken        string          `json:"access_token"`
	SecretKey          string          `json:"secret_key"`
	TokenValidity      *timex.Duration `json:"token_validity"`
	ChunkSize          int             `json:"chunk_size"`
	CallTimeout        *timex.Duration `json:"call_timeout"`
}

// parseJson overlays cfg with the keys present in the JSON config file.
// Panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigFile(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.AccessToken != "" {
		cfg.AccessToken = jc.AccessToken
	}
	if jc.SecretKey != "" {
		cfg.SecretKey = jc.SecretKey
	}
	if jc.TokenValidity != nil {
		cfg.TokenValidity = jc.TokenValidity.Duration
	}
	if jc.ChunkSize > 0 {
		cfg.ChunkSize = jc.ChunkSize
	}
	if jc.CallTimeout != nil {
		cfg.CallTimeout = jc.CallTimeout.Duration
	}
}
