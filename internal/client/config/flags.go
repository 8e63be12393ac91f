package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/stagekeeper/internal/flagx"
)

// ValuedFlags lists the flags of this package that take a value, so callers
// can separate them from positional command arguments.
var ValuedFlags = []string{"-a", "-token", "-s", "-t", "-chunk", "-timeout", "-c", "-config"}

// parseFlags populates Config fields from command-line flags.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-token", "-s", "-t", "-chunk", "-timeout"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.AccessToken, "token", cfg.AccessToken, "access token")
	fs.StringVar(&cfg.SecretKey, "s", cfg.SecretKey, "secret key for minting tokens")
	tokenValidity := fs.Int("t", int(cfg.TokenValidity.Minutes()), "minted token validity (in minutes)")
	fs.IntVar(&cfg.ChunkSize, "chunk", cfg.ChunkSize, "upload chunk size (bytes)")
	fs.DurationVar(&cfg.CallTimeout, "timeout", cfg.CallTimeout, "per-call timeout")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.TokenValidity = time.Duration(*tokenValidity) * time.Minute
}
