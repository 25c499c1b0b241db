package commands

// Command for the public health endpoint

import (
	"context"
	"fmt"

	"partyserver-client/internal/clients_api/partyserver"
	"partyserver-client/internal/infra/log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newHealthCmd(app *cli) *cobra.Command {
	var failUnhealthy bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check PartyServer health",
		Long:  `Fetch service status, version, uptime and the status of dependent services. Never sends admin credentials.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var status string
			err := app.invoke(cmd, partyserver.RouteHealth, func(ctx context.Context, c *partyserver.Client) (interface{}, error) {
				health, err := c.Health(ctx)
				if err != nil {
					return nil, err
				}
				status = health.Status
				return health, nil
			})
			if err != nil {
				return err
			}
			if status != partyserver.HealthHealthy {
				log.LogWarn("PartyServer is not healthy", zap.String("status", status))
				if failUnhealthy {
					return fmt.Errorf("partyserver status is %s", status)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failUnhealthy, "fail-unhealthy", false, "exit with an error unless status is healthy")
	return cmd
}
