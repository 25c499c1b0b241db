package commands

// Commands for the saved admin credential
// The token is minted by the wallet auth provider outside this tool, these commands only store it
// Saves token and wallet address to <data_dir>/admin_auth.json

import (
	"fmt"
	"time"

	storage "partyserver-client/internal/infra/fs"
	"partyserver-client/internal/infra/log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newAuthCmd(app *cli) *cobra.Command {
	authCmd := &cobra.Command{
		Use:         "auth",
		Short:       "Manage the saved admin credential",
		Long:        `Save, inspect and remove the admin token and wallet address used for admin routes.`,
		Annotations: map[string]string{offlineAnnotation: "true"},
	}

	authSaveCmd := &cobra.Command{
		Use:   "save",
		Short: "Save the admin token and wallet address",
		Long: `Save the credential given by --token and --wallet (or ADMIN_TOKEN and ADMIN_WALLET_ADDRESS)
to the data directory. Later calls use it when no credential is passed explicitly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthSave(cmd, app)
		},
	}

	authStatusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the saved admin credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthStatus(cmd, app)
		},
	}

	authClearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the saved admin credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := storage.ClearCredentials(app.cfg.App.DataDir); err != nil {
				log.LogError("Failed to clear credentials", zap.Error(err))
				return err
			}
			log.LogSuccess("Admin credential removed")
			return nil
		},
	}

	authCmd.AddCommand(authSaveCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authClearCmd)
	return authCmd
}

func runAuthSave(cmd *cobra.Command, app *cli) error {
	admin := app.cfg.Admin
	if !admin.IsSet() {
		return fmt.Errorf("--token and --wallet are required")
	}

	path, err := storage.SaveCredentials(app.cfg.App.DataDir, admin.Token, admin.WalletAddress)
	if err != nil {
		log.LogError("Failed to save credentials", zap.Error(err))
		return err
	}

	fields := []zap.Field{zap.String("path", path), zap.String("wallet", admin.WalletAddress)}
	if exp, err := storage.GetTokenExpirationTime(admin.Token); err == nil {
		if exp <= time.Now().Unix() {
			log.LogWarn("Saved token is already expired", zap.String("expiresAt", time.Unix(exp, 0).Format(time.RFC3339)))
		}
		fields = append(fields, zap.String("expiresAt", time.Unix(exp, 0).Format(time.RFC3339)))
	}
	log.LogSuccess("Admin credential saved", fields...)
	fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", path)
	return nil
}

type authStatus struct {
	WalletAddress string `json:"walletAddress"`
	Token         string `json:"token"`
	ExpiresAt     string `json:"expiresAt,omitempty"`
	Expired       bool   `json:"expired"`
}

func runAuthStatus(cmd *cobra.Command, app *cli) error {
	cred, err := storage.LoadCredentials(app.cfg.App.DataDir)
	if err != nil {
		return err
	}

	status := authStatus{
		WalletAddress: cred.WalletAddress,
		Token:         maskToken(cred.AccessToken),
		Expired:       cred.Expired(time.Now(), 0),
	}
	if cred.ExpiresAt != 0 {
		status.ExpiresAt = time.Unix(cred.ExpiresAt, 0).UTC().Format(time.RFC3339)
	}
	return printJSON(cmd.OutOrStdout(), status)
}

// maskToken keeps the first and last 4 characters
func maskToken(token string) string {
	if len(token) <= 12 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
