package docstore

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/printrelay/backend/internal/faults"
)

// ServiceAccount is the subset of a Google service-account key the gateway
// needs to validate before handing the raw JSON to the client library.
type ServiceAccount struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri"`
}

// ParseCredentials validates a service-account JSON document.
func ParseCredentials(source string, raw []byte) (*ServiceAccount, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, &faults.CredentialError{Source: source, Reason: "credentials are empty"}
	}

	var sa ServiceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, &faults.CredentialError{Source: source, Reason: "credentials are not valid JSON", Err: err}
	}

	if sa.Type != "service_account" {
		return nil, &faults.CredentialError{Source: source, Reason: "expected type \"service_account\", got \"" + sa.Type + "\""}
	}

	var missing []string
	if sa.ProjectID == "" {
		missing = append(missing, "project_id")
	}
	if sa.ClientEmail == "" {
		missing = append(missing, "client_email")
	}
	if sa.PrivateKey == "" {
		missing = append(missing, "private_key")
	}
	if len(missing) > 0 {
		return nil, &faults.CredentialError{Source: source, Reason: "missing " + strings.Join(missing, ", ")}
	}
	if !strings.Contains(sa.PrivateKey, "PRIVATE KEY") {
		return nil, &faults.CredentialError{Source: source, Reason: "private_key is not a PEM key"}
	}

	return &sa, nil
}

// LoadCredentials reads credentials from inline JSON, falling back to a file.
// It returns the raw JSON and the parsed account.
func LoadCredentials(inlineJSON, path string) ([]byte, *ServiceAccount, error) {
	if inlineJSON != "" {
		raw := []byte(inlineJSON)
		sa, err := ParseCredentials("inline", raw)
		return raw, sa, err
	}
	if path == "" {
		return nil, nil, &faults.CredentialError{Source: "config", Reason: "no credentials file or inline credentials configured"}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, &faults.CredentialError{Source: path, Reason: "cannot read credentials file", Err: err}
	}
	sa, err := ParseCredentials(path, raw)
	return raw, sa, err
}
