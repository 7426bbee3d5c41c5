package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventapi/apperr"
	"eventapi/models"
	"eventapi/models/mocks"
	"eventapi/utils"
)

func TestAuthSignupAndLogin(t *testing.T) {
	tokens := utils.NewTokenIssuer("test-secret", time.Hour)
	svc := NewAuthService(mocks.NewUserRepo(), tokens)

	u, err := svc.Signup(context.Background(), Actor{}, SignupInput{Email: "Org@Example.com", Password: "longenough", Name: "Org", Role: "organizer"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleOrganizer, u.Role)
	assert.NotEmpty(t, u.ProfileID)
	assert.Empty(t, u.Password)

	_, err = svc.Signup(context.Background(), Actor{}, SignupInput{Email: "org@example.com", Password: "longenough", Name: "Org"})
	requireKind(t, err, apperr.KindConflict)

	_, err = svc.Signup(context.Background(), Actor{}, SignupInput{Email: "off@example.com", Password: "longenough", Name: "Off", Role: "officer"})
	requireKind(t, err, apperr.KindForbidden)

	off, err := svc.Signup(context.Background(), admin, SignupInput{Email: "off@example.com", Password: "longenough", Name: "Off", Role: "officer"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleOfficer, off.Role)

	_, err = svc.Signup(context.Background(), admin, SignupInput{Email: "x@example.com", Password: "longenough", Name: "X", Role: "mayor"})
	requireKind(t, err, apperr.KindBadRequest)

	token, logged, err := svc.Login(context.Background(), "org@example.com", "longenough")
	require.NoError(t, err)
	claims, err := tokens.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, logged.ID, claims.UserID)
	assert.Equal(t, u.ProfileID, claims.ProfileID)
	assert.Equal(t, models.RoleOrganizer, claims.Role)

	_, _, err = svc.Login(context.Background(), "org@example.com", "wrong-password")
	requireKind(t, err, apperr.KindUnauthorized)
}
