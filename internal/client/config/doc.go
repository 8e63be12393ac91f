// Package config loads runtime configuration for the stagectl client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via -c/-config or
//     $STAGEKEEPER_CONFIG.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string        address:port of the staging gRPC endpoint
//	-token string    access token sent with mutating calls
//	-s string        HMAC secret, only needed by the token command
//	-t int           validity of minted tokens (minutes)
//	-chunk int       streamed upload chunk size (bytes)
//	-timeout dur     per-call timeout
//
// # JSON schema
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "access_token": "eyJ...",
//	  "call_timeout": "30s"
//	}
package config
