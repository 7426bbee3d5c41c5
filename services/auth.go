package services

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"eventapi/apperr"
	"eventapi/models"
	"eventapi/utils"
)

type SignupInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
	Role     string `json:"role"`
}

type AuthService struct {
	users  models.UserRepository
	tokens *utils.TokenIssuer
}

func NewAuthService(users models.UserRepository, tokens *utils.TokenIssuer) *AuthService {
	return &AuthService{users: users, tokens: tokens}
}

var publicRoles = map[string]bool{models.RoleCitizen: true, models.RoleOrganizer: true}

var allRoles = map[string]bool{
	models.RoleAdmin: true, models.RoleOrganizer: true, models.RoleOfficer: true,
	models.RoleLGU: true, models.RoleCitizen: true,
}

// Signup creates an account. Only admins may create staff roles.
func (s *AuthService) Signup(ctx context.Context, actor Actor, in SignupInput) (models.User, error) {
	role := strings.ToLower(strings.TrimSpace(in.Role))
	if role == "" {
		role = models.RoleCitizen
	}
	if !allRoles[role] {
		return models.User{}, apperr.BadRequest("Unknown role " + in.Role)
	}
	if !publicRoles[role] && !actor.IsAdmin() {
		return models.User{}, apperr.Forbidden("Only admins can create " + role + " accounts")
	}

	u := models.User{
		Email:     in.Email,
		Password:  in.Password,
		Role:      role,
		ProfileID: primitive.NewObjectID().Hex(),
		Name:      strings.TrimSpace(in.Name),
	}
	if err := s.users.Create(ctx, &u); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return models.User{}, apperr.Conflict("Email is already registered")
		}
		return models.User{}, apperr.Internal("Could not save user.", err)
	}
	u.Password = ""
	return u, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (string, models.User, error) {
	u, err := s.users.ValidateCredentials(ctx, email, password)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			return "", models.User{}, apperr.Unauthorized("Could not authenticate user.")
		}
		return "", models.User{}, apperr.Internal("Could not authenticate user.", err)
	}
	token, err := s.tokens.GenerateToken(u.ID, u.Email, u.Role, u.ProfileID)
	if err != nil {
		return "", models.User{}, apperr.Internal("Could not authenticate user.", err)
	}
	u.Password = ""
	return token, u, nil
}
