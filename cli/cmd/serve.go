package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/sluice/host"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/stdio"
	"github.com/pithecene-io/sluice/types"
)

// ServeCommand returns the serve command: the host side of the bridge,
// speaking length-prefixed frames on stdin/stdout. Logs go to stderr so
// they never corrupt the frame stream.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run a bridge host on stdin/stdout",
		Flags:  []cli.Flag{ConfigFlag},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	meta := &types.BridgeMeta{BridgeID: uuid.NewString(), Component: "host"}
	lg := log.NewLogger(meta).WithOutput(os.Stderr)

	reassembler := host.NewReassembler(
		cfg.Host.PartialExpiry.Duration,
		cfg.Host.SweepInterval.Duration,
		lg,
	)
	reassembler.Start()
	defer reassembler.Stop()

	dispatcher := host.NewDispatcher(lg)
	registerBuiltins(dispatcher)

	publisher, err := buildAdapter(cfg.Adapter)
	if err != nil {
		return cli.Exit(fmt.Sprintf("adapter setup failed: %v", err), 1)
	}
	if publisher != nil {
		defer func() { _ = publisher.Close() }()
	}

	server := stdio.NewServer(os.Stdout, lg)
	h := host.NewHost(host.HostConfig{
		Reassembler: reassembler,
		Dispatcher:  dispatcher,
		Completer:   server,
		Publisher:   publisher,
		Logger:      lg,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(ctx, os.Stdin, h.HandleMessage)
	})
	g.Go(func() error {
		select {
		case <-sigCh:
			// Closing stdin unblocks the read loop.
			_ = os.Stdin.Close()
			return nil
		case <-ctx.Done():
			return nil
		}
	})

	lg.Info("host listening", map[string]any{"actions": dispatcher.Actions()})
	if err := g.Wait(); err != nil {
		return cli.Exit(fmt.Sprintf("serve failed: %v", err), 1)
	}
	return nil
}
