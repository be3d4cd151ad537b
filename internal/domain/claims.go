package domain

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// TokenClaims is the subset of id_token claims this tool reads. The token is
// decoded without signature validation; it only informs labels and headers.
type TokenClaims struct {
	Email            string `json:"email"`
	ChatGPTAccountID string `json:"chatgpt_account_id"`
	APIAuth          struct {
		ChatGPTAccountID string `json:"chatgpt_account_id"`
		ChatGPTPlanType  string `json:"chatgpt_plan_type"`
	} `json:"https://api.openai.com/auth"`
}

func ParseTokenClaims(token string) TokenClaims {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return TokenClaims{}
	}

	decoded, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return TokenClaims{}
	}

	var claims TokenClaims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return TokenClaims{}
	}

	return claims
}

func (c TokenClaims) AccountID() string {
	if c.ChatGPTAccountID != "" {
		return c.ChatGPTAccountID
	}

	return c.APIAuth.ChatGPTAccountID
}

func (c TokenClaims) PlanType() string {
	return c.APIAuth.ChatGPTPlanType
}
