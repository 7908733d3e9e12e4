package main

import (
	"context"
	"log"

	"github.com/goteamwork/roomsync/internal/client/cli"
	"github.com/goteamwork/roomsync/internal/client/config"
	"github.com/goteamwork/roomsync/internal/logging"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := cli.NewApp(cfg, logging.NewDefault())
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Printf("%v", err)
	}
}
