package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Complexia/durango-cli/internal/project"
)

// API is the relay's HTTP surface, used for project registration and the
// peripheral CLI commands.
type API struct {
	BaseURL string
	Token   string

	http *http.Client
}

func NewAPI(baseURL, token string) *API {
	return &API{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// RegisterProject pushes one project registration.
func (a *API) RegisterProject(ctx context.Context, p project.Registration) error {
	var resp struct {
		OK bool `json:"ok"`
	}
	if err := a.post(ctx, "/v1/projects/register", map[string]any{"project": p}, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("relay declined project %s", p.ID)
	}
	return nil
}

// AuthExchange is the relay's answer to an auth code exchange.
type AuthExchange struct {
	Token     string `json:"token"`
	MachineID string `json:"machineId"`
	UserID    string `json:"userId"`
}

// ExchangeAuth trades a browser-issued code for a bearer token and identity.
func (a *API) ExchangeAuth(ctx context.Context, code string) (*AuthExchange, error) {
	var resp AuthExchange
	if err := a.post(ctx, "/v1/cli/auth/exchange", map[string]any{"code": code}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MachineStatus fetches the relay's view of this machine.
func (a *API) MachineStatus(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+"/v1/machines/me/status", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.Token)
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

func (a *API) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.Token)
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func checkStatus(resp *http.Response, expected int) error {
	if resp.StatusCode == expected {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, errResp.Error)
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
}
