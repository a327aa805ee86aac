package syncapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// LoginRequest is the credential exchange payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer token for subsequent sync requests.
type LoginResponse struct {
	Token string `json:"token"`
}

// Login exchanges a username and password for a bearer token. It is a
// package function rather than a Client method because it runs before any
// token exists.
func Login(ctx context.Context, baseURL, username, password string) (string, error) {
	body, err := json.Marshal(LoginRequest{Username: username, Password: password})
	if err != nil {
		return "", fmt.Errorf("failed to encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	var loginResp LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", fmt.Errorf("failed to decode login response: %w", err)
	}
	if loginResp.Token == "" {
		return "", fmt.Errorf("login response missing token")
	}
	return loginResp.Token, nil
}
