package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const copilotTokenMintURL = "https://api.github.com/copilot_internal/v2/token"

// CopilotMinter exchanges a long-lived Copilot token for a short-lived
// bearer, satisfying pool.Minter for the Chat-Completions (gh/|github/)
// backend's two-tier credential (spec §4.2, §6).
type CopilotMinter struct {
	client *http.Client
	url    string
}

func NewCopilotMinter(client *http.Client) *CopilotMinter {
	return &CopilotMinter{client: client, url: copilotTokenMintURL}
}

type copilotTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

func (m *CopilotMinter) Mint(ctx context.Context, longLivedToken string) (string, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Authorization", "token "+longLivedToken)
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", time.Time{}, fmt.Errorf("copilot token mint: http %d", resp.StatusCode)
	}

	var payload copilotTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", time.Time{}, err
	}
	return payload.Token, time.Unix(payload.ExpiresAt, 0), nil
}
