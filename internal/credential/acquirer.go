package credential

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

// TokenAcquirer exchanges the login document for a bearer token via the
// suite API auth endpoint and persists it to the token slot.
type TokenAcquirer struct {
	operationsHost string
	loginData      map[string]interface{}
	tokenPath      string
	httpClient     *http.Client
}

// NewTokenAcquirer creates an acquirer for the given VCF Operations host.
func NewTokenAcquirer(operationsHost string, loginData map[string]interface{}, tokenPath string, insecureTLS bool) *TokenAcquirer {
	return &TokenAcquirer{
		operationsHost: operationsHost,
		loginData:      loginData,
		tokenPath:      tokenPath,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: insecureTLS},
			},
		},
	}
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Acquire requests a fresh bearer token and writes it to the slot file.
func (a *TokenAcquirer) Acquire() error {
	url := fmt.Sprintf("https://%s/suite-api/api/auth/token/acquire", a.operationsHost)

	body, err := json.Marshal(a.loginData)
	if err != nil {
		return fmt.Errorf("failed to marshal login data: %w", err)
	}

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	log.WithField("host", a.operationsHost).Debug("Requesting new bearer token")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call token acquire API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("token acquire API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.Token == "" {
		return fmt.Errorf("token acquire API returned an empty token")
	}

	if err := os.WriteFile(a.tokenPath, []byte(tr.Token), 0600); err != nil {
		return fmt.Errorf("failed to write token slot %s: %w", a.tokenPath, err)
	}

	log.WithField("path", a.tokenPath).Debug("Bearer token written to slot file")
	return nil
}
