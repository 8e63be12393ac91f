package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/stagekeeper/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     gRPC bind address (e.g., ":50051")
//	-h string     HTTP bind address (e.g., ":8080")
//	-dir string   staging directory
//	-ret dur      retention period (e.g., "48h")
//	-sweep dur    sweep interval
//	-chunk int    streamed write chunk size, bytes
//	-relay list   relay candidate base URLs, comma separated, in order
//	-rt dur       per-attempt relay timeout
//	-d string     PostgreSQL DSN for the relay journal
//	-s string     JWT HMAC secret key
//	-t int        session token validity, minutes
//	-u string     S3 root user
//	-p string     S3 root password
//	-b string     S3 bucket name
//	-g string     S3 region
//	-e string     S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-log string   rotated log file
//
// Only the flags listed above are parsed; everything else in os.Args is
// filtered out with flagx.FilterArgs first.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-h", "-dir", "-ret", "-sweep", "-chunk", "-relay", "-rt",
		"-d", "-s", "-t", "-u", "-p", "-b", "-g", "-e", "-log",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run gRPC server")
	fs.StringVar(&config.EndpointAddrHTTP, "h", config.EndpointAddrHTTP, "address and port to run HTTP server")
	fs.StringVar(&config.StagingDir, "dir", config.StagingDir, "staging directory")
	fs.DurationVar(&config.RetentionPeriod, "ret", config.RetentionPeriod, "retention period of staged files")
	fs.DurationVar(&config.SweepInterval, "sweep", config.SweepInterval, "sweep interval")
	fs.IntVar(&config.ChunkSize, "chunk", config.ChunkSize, "streamed write chunk size (bytes)")

	var relays flagx.StringList
	fs.Var(&relays, "relay", "relay endpoint base URLs, comma separated, in failover order")
	fs.DurationVar(&config.RelayTimeout, "rt", config.RelayTimeout, "per-attempt relay timeout")

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 archive bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.LogFile, "log", config.LogFile, "log file")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if len(relays) > 0 {
		config.RelayEndpoints = []string(relays)
	}
	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
}
