package party

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Credential is the token endpoint's answer.
type Credential struct {
	Identity  string `json:"identity"`
	Token     string `json:"token"`
	ServerURL string `json:"serverUrl"`
}

type TokenFetcher interface {
	Fetch(ctx context.Context, name, partyID string, host bool) (Credential, error)
}

// HTTPTokenFetcher calls GET <BaseURL>/api/token.
type HTTPTokenFetcher struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPTokenFetcher(baseURL string) *HTTPTokenFetcher {
	return &HTTPTokenFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (f *HTTPTokenFetcher) Fetch(ctx context.Context, name, partyID string, host bool) (Credential, error) {
	q := url.Values{
		"name":     {name},
		"party_id": {partyID},
		"host":     {strconv.FormatBool(host)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"/api/token?"+q.Encode(), nil)
	if err != nil {
		return Credential{}, fmt.Errorf("build token request: %w", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "" {
			body.Error = resp.Status
		}
		return Credential{}, fmt.Errorf("token endpoint %d: %s", resp.StatusCode, body.Error)
	}

	var cred Credential
	if err := json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		return Credential{}, fmt.Errorf("decode token response: %w", err)
	}
	if cred.Token == "" {
		return Credential{}, fmt.Errorf("token endpoint returned no token")
	}
	if cred.ServerURL == "" {
		cred.ServerURL = f.BaseURL
	}
	return cred, nil
}
