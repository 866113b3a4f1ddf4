package services

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"duel-match-system/utils"
)

// AuthServiceClient validates the player tokens that SSE clients pass in the
// query string, since EventSource cannot set headers.
type AuthServiceClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

type ValidateResponse struct {
	UserID                  string   `json:"user_id"`
	DeviceID                string   `json:"device_id"`
	OTPNotRequiredForDevice bool     `json:"otp_not_required_for_device"`
	Roles                   []string `json:"roles"`
}

func NewAuthServiceClient(baseURL, token string) *AuthServiceClient {
	return &AuthServiceClient{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ValidateToken calls /auth/validate on the auth service
func (c *AuthServiceClient) ValidateToken(ctx context.Context, accessToken, deviceID string) (*ValidateResponse, error) {
	url := fmt.Sprintf("%s/auth/validate", c.BaseURL)
	body := map[string]interface{}{
		"access_token": accessToken,
		"device_id":    deviceID,
	}

	var out ValidateResponse
	if err := utils.DoJSON(ctx, c.Client, http.MethodPost, url, c.Token, body, &out); err != nil {
		log.Printf("AuthService /validate failed: %v", err)
		return nil, fmt.Errorf("auth validation failed: %w", err)
	}
	return &out, nil
}
