package main

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshay033333/medical-claims-pipeline/internal/claims/validate"
)

func TestGeneratedClaimsAreStructurallySound(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	seen := make(map[string]bool)
	for i := int64(1); i <= 50; i++ {
		c := generateClaim(rng, i)
		require.Empty(t, validate.Claim(c), "claim %s", c.ClaimID)
		assert.False(t, seen[c.ClaimID], "claim id %s repeated", c.ClaimID)
		seen[c.ClaimID] = true
	}
}

func TestCorruptedClaimsFailValidation(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := int64(1); i <= 50; i++ {
		c := generateClaim(rng, i)
		corruptClaim(rng, c)
		assert.NotEmpty(t, validate.Claim(c), "claim %s should carry a defect", c.ClaimID)
	}
}
