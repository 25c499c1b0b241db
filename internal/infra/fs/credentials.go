package fs

// File-backed admin credential provider
// Stores the session token and wallet address obtained from the auth provider in <dataDir>/admin_auth.json
// Token expiry is read from the JWT exp claim without verifying the signature, the server verifies it

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"partyserver-client/internal/clients_api/partyserver"

	"github.com/golang-jwt/jwt/v5"
)

const credentialsFile = "admin_auth.json"

var (
	// ErrNoCredentials - no credential file in the data directory
	ErrNoCredentials = errors.New("no saved admin credentials")
	// ErrCredentialsExpired - the saved token is past its exp claim
	ErrCredentialsExpired = errors.New("saved admin token is expired")
)

// CredentialFile - on-disk admin credential
type CredentialFile struct {
	AccessToken   string `json:"accessToken"`
	WalletAddress string `json:"walletAddress"`
	ExpiresAt     int64  `json:"expiresAt,omitempty"` // Unix seconds, 0 when the token is not a JWT
	SavedAt       int64  `json:"savedAt"`
}

// Expired reports whether the token expires within skew of now
// Tokens without a known expiry never expire here
func (c *CredentialFile) Expired(now time.Time, skew time.Duration) bool {
	if c.ExpiresAt == 0 {
		return false
	}
	return now.Add(skew).Unix() >= c.ExpiresAt
}

// AdminAuth converts the file into the client's credential pair
func (c *CredentialFile) AdminAuth() partyserver.AdminAuth {
	return partyserver.AdminAuth{Token: c.AccessToken, WalletAddress: c.WalletAddress}
}

func credentialsPath(dataDir string) string {
	return filepath.Join(dataDir, credentialsFile)
}

// SaveCredentials writes token and wallet to dataDir, readable only by the owner
func SaveCredentials(dataDir, token, walletAddress string) (string, error) {
	token = strings.TrimSpace(token)
	walletAddress = strings.TrimSpace(walletAddress)
	if token == "" || walletAddress == "" {
		return "", fmt.Errorf("token and wallet address are required")
	}

	cred := CredentialFile{
		AccessToken:   token,
		WalletAddress: walletAddress,
		SavedAt:       time.Now().Unix(),
	}
	if exp, err := GetTokenExpirationTime(token); err == nil {
		cred.ExpiresAt = exp
	}

	jsonData, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal credentials: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	filename := credentialsPath(dataDir)
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, jsonData, 0600); err != nil {
		return "", fmt.Errorf("failed to save credentials: %w", err)
	}
	if err := os.Rename(tmp, filename); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to save credentials: %w", err)
	}
	return filename, nil
}

// LoadCredentials reads the credential file, ErrNoCredentials when it does not exist
func LoadCredentials(dataDir string) (*CredentialFile, error) {
	data, err := os.ReadFile(credentialsPath(dataDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var cred CredentialFile
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials file: %w", err)
	}
	if cred.AccessToken == "" || cred.WalletAddress == "" {
		return nil, fmt.Errorf("credentials file is incomplete: %w", ErrNoCredentials)
	}
	return &cred, nil
}

// ClearCredentials removes the credential file, a missing file is not an error
func ClearCredentials(dataDir string) error {
	err := os.Remove(credentialsPath(dataDir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credentials file: %w", err)
	}
	return nil
}

// GetTokenExpirationTime returns the exp claim of a JWT in Unix seconds
func GetTokenExpirationTime(token string) (int64, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return 0, fmt.Errorf("failed to parse JWT: %w", err)
	}
	if claims.ExpiresAt == nil {
		return 0, fmt.Errorf("JWT token does not contain expiration time")
	}
	return claims.ExpiresAt.Unix(), nil
}

// FileProvider resolves the admin credential for a command run
type FileProvider struct {
	DataDir string
	Skew    time.Duration // treat tokens expiring within Skew as expired
	Now     func() time.Time
}

// AdminAuth returns the saved credential
// ErrNoCredentials and ErrCredentialsExpired let callers fall back to running unauthenticated
func (p FileProvider) AdminAuth() (*partyserver.AdminAuth, error) {
	cred, err := LoadCredentials(p.DataDir)
	if err != nil {
		return nil, err
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	if cred.Expired(now(), p.Skew) {
		return nil, fmt.Errorf("%w (expired at %s)", ErrCredentialsExpired, time.Unix(cred.ExpiresAt, 0).Format(time.RFC3339))
	}
	auth := cred.AdminAuth()
	return &auth, nil
}
