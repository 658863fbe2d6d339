package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/bridge"
	"github.com/pithecene-io/sluice/cli/render"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/metrics"
	"github.com/pithecene-io/sluice/stdio"
	"github.com/pithecene-io/sluice/types"
)

// CallCommand returns the call command: the caller side of the bridge.
// It spawns a host process, performs one call over its stdin/stdout,
// and prints the response.
func CallCommand() *cli.Command {
	return &cli.Command{
		Name:      "call",
		Usage:     "Invoke an action on a bridge host",
		ArgsUsage: "<action>",
		Flags: append([]cli.Flag{
			ConfigFlag,
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "JSON payload for the action",
				Value:   "{}",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host command to spawn (default: this binary's serve command)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Overall call timeout",
				Value: time.Minute,
			},
			&cli.StringFlag{
				Name:  "stats-out",
				Usage: "Write a metrics snapshot JSON to this file after the call",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log bridge internals to stderr",
			},
		}, ReadOnlyFlags()...),
		Action: callAction,
	}
}

func callAction(c *cli.Context) error {
	action := c.Args().First()
	if action == "" {
		return cli.Exit("call requires an action argument", 1)
	}
	data := json.RawMessage(c.String("data"))
	if !json.Valid(data) {
		return cli.Exit("--data must be valid JSON", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for call command", 1)
	}

	meta := &types.BridgeMeta{Component: "caller"}
	lg := log.Nop()
	if c.Bool("verbose") {
		lg = log.NewLogger(meta).WithOutput(os.Stderr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
	defer cancel()

	hostCmd, err := hostArgv(c.String("host"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	proc := exec.CommandContext(ctx, hostCmd[0], hostCmd[1:]...)
	proc.Stderr = os.Stderr
	hostIn, err := proc.StdinPipe()
	if err != nil {
		return fmt.Errorf("host stdin pipe: %w", err)
	}
	hostOut, err := proc.StdoutPipe()
	if err != nil {
		return fmt.Errorf("host stdout pipe: %w", err)
	}
	if err := proc.Start(); err != nil {
		return cli.Exit(fmt.Sprintf("cannot start host %q: %v", strings.Join(hostCmd, " "), err), 1)
	}

	collector := metrics.NewCollector("", "caller")
	var b *bridge.Bridge
	client := stdio.NewClient(hostIn, hostOut, func(sessionID, response string) {
		b.HandleChunkedResponse(sessionID, response)
	}, lg)

	publisher, err := buildAdapter(cfg.Adapter)
	if err != nil {
		return cli.Exit(fmt.Sprintf("adapter setup failed: %v", err), 1)
	}
	if publisher != nil {
		defer func() { _ = publisher.Close() }()
	}

	bcfg := bridgeConfigFrom(cfg)
	bcfg.Logger = lg
	bcfg.Collector = collector
	bcfg.Publisher = publisher
	b, err = bridge.New(client, bcfg)
	if err != nil {
		return fmt.Errorf("bridge setup: %w", err)
	}

	result, callErr := b.CallResult(ctx, action, data)

	_ = b.Close()
	_ = hostIn.Close()
	_ = proc.Wait()

	if path := c.String("stats-out"); path != "" {
		if err := writeSnapshot(path, collector.Snapshot()); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	if callErr != nil {
		return cli.Exit(fmt.Sprintf("call failed: %v", callErr), 1)
	}
	if err := r.Render(result); err != nil {
		return err
	}
	if !result.Success {
		return cli.Exit("", 1)
	}
	return nil
}

// hostArgv resolves the host command line. An empty spec spawns this
// binary's own serve command.
func hostArgv(spec string) ([]string, error) {
	if spec == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve own binary: %w", err)
		}
		return []string{self, "serve"}, nil
	}
	argv := strings.Fields(spec)
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty host command")
	}
	return argv, nil
}

func writeSnapshot(path string, snap metrics.Snapshot) error {
	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, append(body, '\n'), 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
