package commands

// Commands for trading agent management
// start, stop and validate send an opaque JSON body from --body or --body-file
// status and trades take the agent id as argument and can save the response to out_dir
// All agent routes are admin-scoped

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"partyserver-client/internal/clients_api/partyserver"
	storage "partyserver-client/internal/infra/fs"
	"partyserver-client/internal/infra/log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newAgentsCmd(app *cli) *cobra.Command {
	agentsCmd := &cobra.Command{
		Use:   "agents",
		Short: "Manage trading agents",
		Long:  `Start, stop and validate trading agents, and read their status and trade history.`,
	}

	agentsCmd.AddCommand(newAgentBodyCmd(app, "start", "Start a trading bot instance for an agent",
		partyserver.RouteStartAgent, (*partyserver.Client).StartAgent))
	agentsCmd.AddCommand(newAgentBodyCmd(app, "stop", "Stop a running trading bot instance",
		partyserver.RouteStopAgent, (*partyserver.Client).StopAgent))
	agentsCmd.AddCommand(newAgentBodyCmd(app, "validate", "Validate an agent configuration before saving",
		partyserver.RouteValidateAgent, (*partyserver.Client).ValidateAgent))

	agentsCmd.AddCommand(newAgentIDCmd(app, "status", "Get real-time execution status of an agent",
		partyserver.RouteGetAgentStatus, (*partyserver.Client).GetAgentStatus))
	agentsCmd.AddCommand(newAgentIDCmd(app, "trades", "Fetch trade history of an agent",
		partyserver.RouteGetAgentTrades, (*partyserver.Client).GetAgentTrades))

	return agentsCmd
}

type bodyMethod func(c *partyserver.Client, ctx context.Context, request interface{}) (json.RawMessage, error)
type idMethod func(c *partyserver.Client, ctx context.Context, id string) (json.RawMessage, error)

func newAgentBodyCmd(app *cli, use, short string, route partyserver.Route, method bodyMethod) *cobra.Command {
	var body, bodyFile string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  fmt.Sprintf("%s.\nCalls %s %s with the JSON body given by --body or --body-file (- reads stdin).", short, route.Method, route.Path),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readBody(cmd.InOrStdin(), body, bodyFile)
			if err != nil {
				return err
			}
			return app.invoke(cmd, route, func(ctx context.Context, c *partyserver.Client) (interface{}, error) {
				var request interface{}
				if payload != nil {
					request = payload
				}
				return method(c, ctx, request)
			})
		},
	}
	cmd.Flags().StringVar(&body, "body", "", "request body as inline JSON")
	cmd.Flags().StringVar(&bodyFile, "body-file", "", "path of a JSON file with the request body, - for stdin")
	cmd.MarkFlagsMutuallyExclusive("body", "body-file")
	return cmd
}

func newAgentIDCmd(app *cli, use, short string, route partyserver.Route, method idMethod) *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   use + " <agent-id>",
		Short: short,
		Long:  fmt.Sprintf("%s.\nCalls %s %s. With --save the response is also written to the output directory.", short, route.Method, route.Path),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return app.invoke(cmd, route, func(ctx context.Context, c *partyserver.Client) (interface{}, error) {
				data, err := method(c, ctx, id)
				if err != nil || !save {
					return data, err
				}
				path, err := storage.SaveResponse(app.cfg.App.OutDir, storage.ResponseFileName(route.Name, id, time.Now()), data)
				if err != nil {
					return nil, err
				}
				log.LogSuccess("Response saved", zap.String("path", path))
				return data, nil
			})
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "also save the response as JSON in the output directory")
	return cmd
}

// readBody returns nil when no body was given, the request then goes out without one
func readBody(stdin io.Reader, body, bodyFile string) (json.RawMessage, error) {
	var data []byte
	switch {
	case body != "":
		data = []byte(body)
	case bodyFile == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read body from stdin: %w", err)
		}
		data = b
	case bodyFile != "":
		// a response saved with --save can be replayed as a body
		payload, err := storage.LoadJSON(bodyFile)
		if err != nil {
			return nil, fmt.Errorf("request body: %w", err)
		}
		return payload, nil
	default:
		return nil, nil
	}

	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("request body is empty")
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("request body is not valid JSON")
	}
	return json.RawMessage(data), nil
}
