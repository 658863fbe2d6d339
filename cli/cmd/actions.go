package cmd

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/cli/render"
	"github.com/pithecene-io/sluice/host"
)

// ActionInfo describes one built-in action for listings.
type ActionInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// builtinAction pairs an action's listing entry with its handler.
type builtinAction struct {
	name        string
	description string
	handler     host.HandlerFunc
}

// builtinActions is the action set the bundled host serves. Embedders of
// the host package register their own; the CLI binary ships a minimal set
// for wiring checks and transfer exercises.
func builtinActions() []builtinAction {
	return []builtinAction{
		{
			name:        "ping",
			description: "Respond with \"pong\"",
			handler: func(_ context.Context, _ json.RawMessage) (any, error) {
				return "pong", nil
			},
		},
		{
			name:        "echo",
			description: "Return the request data unchanged",
			handler: func(_ context.Context, data json.RawMessage) (any, error) {
				return data, nil
			},
		},
		{
			name:        "byteCount",
			description: "Return the byte length of the request data",
			handler: func(_ context.Context, data json.RawMessage) (any, error) {
				return len(data), nil
			},
		},
	}
}

// registerBuiltins installs the built-in actions on a dispatcher.
func registerBuiltins(d *host.Dispatcher) {
	for _, a := range builtinActions() {
		d.Register(a.name, a.handler)
	}
}

// actionList returns the listing entries for the built-in actions,
// sorted by name.
func actionList() []ActionInfo {
	builtins := builtinActions()
	infos := make([]ActionInfo, 0, len(builtins))
	for _, a := range builtins {
		infos = append(infos, ActionInfo{Name: a.name, Description: a.description})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// ActionsCommand returns the actions command: lists the actions the
// bundled host serves.
func ActionsCommand() *cli.Command {
	return &cli.Command{
		Name:   "actions",
		Usage:  "List the built-in actions of the bundled host",
		Flags:  ReadOnlyFlags(),
		Action: actionsAction,
	}
}

func actionsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for actions command", 1)
	}
	return r.Render(actionList())
}
