package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTokenClaimsReadsNamespacedClaims(t *testing.T) {
	t.Parallel()

	token := testJWT(t, map[string]any{
		"email": "alice@example.com",
		"https://api.openai.com/auth": map[string]any{
			"chatgpt_account_id": "acct-1",
			"chatgpt_plan_type":  "plus",
		},
	})

	claims := ParseTokenClaims(token)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "acct-1", claims.AccountID())
	assert.Equal(t, "plus", claims.PlanType())
}

func TestParseTokenClaimsPrefersTopLevelAccountID(t *testing.T) {
	t.Parallel()

	token := testJWT(t, map[string]any{
		"chatgpt_account_id": "top-level",
		"https://api.openai.com/auth": map[string]any{
			"chatgpt_account_id": "nested",
		},
	})

	claims := ParseTokenClaims(token)
	assert.Equal(t, "top-level", claims.AccountID())
}

func TestParseTokenClaimsGarbageYieldsZeroValue(t *testing.T) {
	t.Parallel()

	for _, token := range []string{"", "not-a-jwt", "a.!!!.c", "a." + "bm90IGpzb24" + ".c"} {
		claims := ParseTokenClaims(token)
		assert.Equal(t, TokenClaims{}, claims, "token %q", token)
	}
}
