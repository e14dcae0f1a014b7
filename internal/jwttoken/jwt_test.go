package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "clicr/pkg/domain"
	dErrors "clicr/pkg/domain-errors"
)

const testKey = "unit-test-signing-key-32-bytes-min"

func TestGenerateAndValidateRoundtrip(t *testing.T) {
	svc := NewService(testKey, "clicr")
	userID := id.NewUserID()
	businessID := id.NewBusinessID()

	token, err := svc.GenerateAccessToken(userID, businessID, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, businessID.String(), claims.BusinessID)
	assert.Equal(t, "clicr", claims.Issuer)
}

func TestValidateTokenExpired(t *testing.T) {
	svc := NewService(testKey, "clicr")
	token, err := svc.GenerateAccessToken(id.NewUserID(), id.NewBusinessID(), -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateTokenWrongKey(t *testing.T) {
	token, err := NewService(testKey, "clicr").
		GenerateAccessToken(id.NewUserID(), id.NewBusinessID(), time.Hour)
	require.NoError(t, err)

	_, err = NewService("a-completely-different-signing-key", "clicr").ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateTokenGarbage(t *testing.T) {
	svc := NewService(testKey, "clicr")
	_, err := svc.ValidateToken("not.a.jwt")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestExtractUserID(t *testing.T) {
	svc := NewService(testKey, "clicr")
	userID := id.NewUserID()
	token, err := svc.GenerateAccessToken(userID, id.NewBusinessID(), time.Hour)
	require.NoError(t, err)

	extracted, err := svc.ExtractUserID(token)
	require.NoError(t, err)
	assert.Equal(t, userID, extracted)
}
