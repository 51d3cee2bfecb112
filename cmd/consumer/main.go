package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/you-humble/imagepipe/internal/consumerapp"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	a := consumerapp.New(ctx)
	if err := a.Run(ctx); err != nil {
		log.Fatalln("consumer:", err)
	}
}
