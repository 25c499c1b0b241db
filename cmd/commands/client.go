package commands

// Builds the PartyServer client from the loaded configuration
// Runs endpoint calls under the caller-side retry policy and prints results as JSON

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"partyserver-client/internal/clients_api/partyserver"
	storage "partyserver-client/internal/infra/fs"
	"partyserver-client/internal/infra/log"
	"partyserver-client/internal/infra/retry"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// saved tokens expiring within this window are treated as expired
const credentialSkew = 30 * time.Second

type callFunc func(ctx context.Context, client *partyserver.Client) (interface{}, error)

func (a *cli) newClient() (*partyserver.Client, error) {
	api := a.cfg.API

	opts := []partyserver.Option{partyserver.WithMaxResponseSize(api.MaxResponseSize)}
	if api.RateLimitRPS > 0 {
		opts = append(opts, partyserver.WithRateLimit(api.RateLimitRPS, api.RateLimitBurst))
	}
	if api.RouteRateLimits {
		opts = append(opts, partyserver.WithRouteRateLimits())
	}
	if api.BreakerEnabled {
		opts = append(opts, partyserver.WithCircuitBreaker(partyserver.BreakerSettings{
			ConsecutiveFailures: api.BreakerFailures,
			OpenTimeout:         time.Duration(api.BreakerTimeoutS) * time.Second,
		}))
	}

	auth, err := a.adminAuth()
	if err != nil {
		return nil, err
	}

	return partyserver.NewClient(partyserver.Config{
		BaseURL:   api.BaseURL,
		Headers:   api.Headers,
		Timeout:   api.Timeout(),
		AdminAuth: auth,
	}, opts...)
}

// adminAuth resolves the credential: flags and environment first, then the saved credential file
// No credential is not an error, admin routes then go out without Authorization
func (a *cli) adminAuth() (*partyserver.AdminAuth, error) {
	if a.cfg.Admin.IsSet() {
		return &partyserver.AdminAuth{Token: a.cfg.Admin.Token, WalletAddress: a.cfg.Admin.WalletAddress}, nil
	}

	auth, err := storage.FileProvider{DataDir: a.cfg.App.DataDir, Skew: credentialSkew}.AdminAuth()
	switch {
	case err == nil:
		return auth, nil
	case errors.Is(err, storage.ErrNoCredentials):
		return nil, nil
	case errors.Is(err, storage.ErrCredentialsExpired):
		log.LogWarn("Saved admin token is expired, save a fresh one with 'partyserver auth save'", zap.Error(err))
		return nil, nil
	default:
		return nil, fmt.Errorf("failed to load admin credentials: %w", err)
	}
}

// invoke performs one endpoint call, retried only when --retries is set
func (a *cli) invoke(cmd *cobra.Command, route partyserver.Route, fn callFunc) error {
	client, err := a.newClient()
	if err != nil {
		return err
	}
	if route.Admin && !client.HasAdminAuth() {
		log.LogWarn("No admin credential configured, sending without Authorization",
			zap.String("route", route.Name))
	}

	opts := partyserver.RetryOptions(a.cfg.Retry.MaxRetries, a.cfg.Retry.BaseDelay(), a.cfg.Retry.MaxDelay())
	opts.OnRetry = func(attempt int, delay time.Duration, err error) {
		log.LogWarn("Retrying call",
			zap.String("route", route.Name),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	var result interface{}
	err = retry.Do(cmd.Context(), opts, func(ctx context.Context) error {
		res, err := fn(ctx, client)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		if apiErr, ok := partyserver.IsAPIError(err); ok {
			log.LogError("Call rejected by server",
				zap.String("route", route.Name),
				zap.String("code", apiErr.Code),
				zap.String("message", apiErr.Message))
		}
		return err
	}

	log.LogSuccess("Call completed", zap.String("route", route.Name))
	return printJSON(cmd.OutOrStdout(), result)
}

func printJSON(w io.Writer, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format response: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
