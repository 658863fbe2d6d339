package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/cli/render"
	"github.com/pithecene-io/sluice/metrics"
)

// StatsCommand returns the stats command. It renders a metrics snapshot
// produced by `sluice call --stats-out` (or any bridge embedding that
// writes snapshot JSON).
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Render a bridge metrics snapshot",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "file",
				Usage: "Snapshot JSON file to read (- for stdin)",
				Value: "-",
			},
		}, ReadOnlyFlags()...),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	snap, err := loadSnapshot(c.String("file"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI("stats_bridge", snap)
	}
	return r.Render(snap)
}

func loadSnapshot(path string) (*metrics.Snapshot, error) {
	var body []byte
	var err error
	if path == "-" {
		body, err = io.ReadAll(os.Stdin)
	} else {
		body, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read snapshot: %w", err)
	}

	var snap metrics.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("invalid snapshot JSON: %w", err)
	}
	return &snap, nil
}
