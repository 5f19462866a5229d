package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Gokkul-M/istri-sub000/pkg/istri"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := istri.Main(ctx, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
