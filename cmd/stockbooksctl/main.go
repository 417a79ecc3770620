package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/stockbooks/stockbooks/cmd/stockbooksctl/cli"
	"github.com/stockbooks/stockbooks/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(load).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func load(ctx context.Context) (*cli.Deps, func(), error) {
	cfg, err := app.LoadConfig("")
	if err != nil {
		return nil, nil, err
	}
	logger := app.NewLogger(cfg)
	container, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		container.Close(ctx)
		return nil, nil, err
	}
	release := func() {
		_ = jobsCLI.Close()
		container.Close(context.Background())
	}
	return &cli.Deps{
		Reports:      container.Reports,
		Transactions: container.Transactions,
		Sync:         container.Engine,
		Jobs:         jobsCLI,
	}, release, nil
}
