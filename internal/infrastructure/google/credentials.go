// Package google adapts Google Drive and Google Sheets to the image sync and
// pricing domains.
package google

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/option"

	"github.com/nest-haus/backend/internal/infrastructure/config"
)

// ErrNotConfigured is returned when no service account credentials are set.
var ErrNotConfigured = errors.New("google: service account not configured")

// serviceAccountJSON is the subset of a service account key file the client libraries need.
type serviceAccountJSON struct {
	Type        string `json:"type"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// ClientOptions builds authenticated client options from cfg. A key file wins
// over an inline email/key pair. Inline keys may carry escaped newlines.
func ClientOptions(cfg config.GoogleConfig, scopes ...string) ([]option.ClientOption, error) {
	opts := []option.ClientOption{option.WithScopes(scopes...)}
	switch {
	case cfg.ServiceAccountKeyFile != "":
		return append(opts, option.WithCredentialsFile(cfg.ServiceAccountKeyFile)), nil
	case cfg.ServiceAccountEmail != "" && cfg.ServiceAccountKey != "":
		data, err := json.Marshal(serviceAccountJSON{
			Type:        "service_account",
			ClientEmail: cfg.ServiceAccountEmail,
			PrivateKey:  strings.ReplaceAll(cfg.ServiceAccountKey, `\n`, "\n"),
			TokenURI:    "https://oauth2.googleapis.com/token",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode service account: %w", err)
		}
		return append(opts, option.WithCredentialsJSON(data)), nil
	default:
		return nil, ErrNotConfigured
	}
}
