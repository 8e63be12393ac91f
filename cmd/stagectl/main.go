package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/dmitrijs2005/stagekeeper/internal/client/cli"
	"github.com/dmitrijs2005/stagekeeper/internal/client/config"
	"github.com/dmitrijs2005/stagekeeper/internal/flagx"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := cli.NewApp(cfg)

	if err != nil {
		log.Fatalf("%v", err)
	}

	err = app.Run(ctx, flagx.Positional(os.Args[1:], config.ValuedFlags))
	_ = app.Close()

	if errors.Is(err, cli.ErrUsage) {
		log.Printf("%v", err)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}
