package channel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/drover-ai/drover/internal/config"
)

// Credentials is the persisted token pair for a client, kept 0600
// because the refresh token is a bearer credential.
type Credentials struct {
	ServerURL    string `json:"server_url"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// CredentialsPath returns the default credentials file location.
func CredentialsPath() string {
	return filepath.Join(config.DataDir(), "credentials.json")
}

// SaveCredentials writes the pair to path (default location when empty).
func SaveCredentials(path string, creds Credentials) error {
	if path == "" {
		path = CredentialsPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("channel: create credentials directory: %w", err)
	}

	raw, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("channel: encode credentials: %w", err)
	}
	if err := os.WriteFile(path, raw, 0600); err != nil {
		return fmt.Errorf("channel: write credentials: %w", err)
	}
	return nil
}

// LoadCredentials reads a previously saved pair.
func LoadCredentials(path string) (*Credentials, error) {
	if path == "" {
		path = CredentialsPath()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("channel: read credentials: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("channel: decode credentials: %w", err)
	}
	return &creds, nil
}

// Snapshot returns the client's current tokens for persistence.
func (c *Client) Snapshot(serverURL string) Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Credentials{
		ServerURL:    serverURL,
		AccessToken:  c.accessToken,
		RefreshToken: c.refreshToken,
	}
}
