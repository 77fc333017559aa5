package main

import (
	"fmt"
	"os"
	"strings"
)

// exportEnvFile writes a .env file that lets a local API server start
// immediately: a freshly generated JWT signing key, the given data root,
// and test-mode defaults so no external credentials are needed. Values the
// operator must replace for real deployments carry placeholder text.
func exportEnvFile(out, dataRoot string, force bool) error {
	if _, err := os.Stat(out); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", out)
	}

	signingKey, err := generateSecureToken()
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("# Generated by bootstrap export-env. Secrets below are for local\n")
	b.WriteString("# development only; production values live in the deployment platform.\n\n")

	entries := []struct{ key, value string }{
		{"APP_ENV", "local"},
		{"LOG_LEVEL", "debug"},
		{"IS_TEST_MODE", "true"},
		{"PORT", "8080"},
		{"API_EXTERNAL_URL", "http://localhost:8080"},
		{"DATA_ROOT", dataRoot},
		{"JWT_SIGNING_KEY", signingKey},
		{"OPENAI_API_KEY", "replace-me-openai"},
		{"PAYMENT_BASE_URL", "https://api-m.sandbox.paypal.com"},
		{"PAYMENT_CLIENT_ID", "replace-me-client-id"},
		{"PAYMENT_CLIENT_SECRET", "replace-me-client-secret"},
		{"SENDGRID_API_KEY", "replace-me-sendgrid"},
		{"EMAIL_PROVIDER", "stub"},
	}
	for _, e := range entries {
		fmt.Fprintf(&b, "%s=%s\n", e.key, e.value)
	}

	// 0600: the file carries a signing key.
	if err := os.WriteFile(out, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	return nil
}
