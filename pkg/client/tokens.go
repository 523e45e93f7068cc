package client

import (
	"context"
	"net/http"
)

// TokenCreateResponse is the response from issuing a token.
type TokenCreateResponse struct {
	Token       string `json:"token"`
	TargetID    string `json:"targetId"`
	TTLEpochSec int64  `json:"ttlEpochSec"`
}

type createTokenRequest struct {
	TargetParts []string `json:"targetParts"`
}

type verifyTokenRequest struct {
	Token       string   `json:"token"`
	TargetParts []string `json:"targetParts"`
}

// TokenCreate issues a single-use verification token for the target
// identified by the given parts.
func (c *Client) TokenCreate(ctx context.Context, targetParts ...string) (*TokenCreateResponse, error) {
	var resp TokenCreateResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/tokens", createTokenRequest{TargetParts: targetParts}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// TokenVerify consumes a token and reports whether it was valid. The token
// is spent either way.
func (c *Client) TokenVerify(ctx context.Context, token string, targetParts ...string) (bool, error) {
	var resp struct {
		Valid bool `json:"valid"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/tokens/verify", verifyTokenRequest{
		Token:       token,
		TargetParts: targetParts,
	}, &resp)
	if err != nil {
		return false, err
	}
	return resp.Valid, nil
}
