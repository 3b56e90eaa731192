package main

import (
	"context"
	"fmt"
	"os"

	"ytdlp-telegram-bot/internal/bootstrap"
)

func main() {
	if err := bootstrap.Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "ytbot: %v\n", err)
		os.Exit(1)
	}
}
