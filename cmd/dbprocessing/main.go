package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	dperrors "github.com/yungbote/dbprocessing/internal/pkg/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "dbprocessing: %v\n", err)
		if errors.Is(err, dperrors.ErrLockHeld) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
