package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/whitekid/goxp/log"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Errorf("%+v", err)
		os.Exit(1)
	}
}
