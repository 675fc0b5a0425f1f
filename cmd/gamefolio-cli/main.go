package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/gamefolio/backend/internal/client/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.Execute(ctx, os.Args[1:]); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "gamefolio:", err)
		os.Exit(1)
	}
}
