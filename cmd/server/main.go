package main

import (
	"context"
	"log"

	"github.com/nav2424/rift-sub004/internal/server"
	"github.com/nav2424/rift-sub004/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
