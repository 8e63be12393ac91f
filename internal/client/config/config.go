package config

import "time"

// Config holds runtime settings for the stagectl client.
type Config struct {
	ServerEndpointAddr string
	AccessToken        string
	SecretKey          string
	TokenValidity      time.Duration
	ChunkSize          int
	CallTimeout        time.Duration
}

// LoadDefaults populates c with defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.AccessToken = ""
	c.SecretKey = ""
	c.TokenValidity = 1 * time.Hour
	c.ChunkSize = 64 * 1024
	c.CallTimeout = 30 * time.Second
}

// LoadConfig applies defaults, then JSON, then flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
