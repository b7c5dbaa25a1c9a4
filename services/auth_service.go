package services

import (
	"fmt"
	"time"

	"chat-relay/auth"
	"chat-relay/errors"
	"chat-relay/repositories"
)

type IAuthService interface {
	// Authenticate re-checks credentials. It is called on every
	// state-mutating route; the relay holds no session state.
	Authenticate(username, password string) (bool, error)
	// Login is Authenticate plus an informational token on success.
	Login(username, password string) (bool, Token, error)
	// Register creates the account and returns its ID and a token.
	Register(username, password string) (string, Token, error)
}

type Token string

type AuthService struct {
	userRepository repositories.IUserRepository
	tokenDuration  time.Duration
}

func NewAuthService(repo repositories.IUserRepository, tokenDuration time.Duration) IAuthService {
	return &AuthService{userRepository: repo, tokenDuration: tokenDuration}
}

func (s *AuthService) Register(username, password string) (string, Token, error) {
	valReq := auth.SignupRequest{
		Username: username,
		Password: password,
	}

	// Validate before any expensive cryptographic operation.
	if err := auth.ValidateSignup(valReq); err != nil {
		return "", "", err
	}

	// Hash in the service layer to keep the repository unaware of
	// plain passwords.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", "", fmt.Errorf("hashing failed: %w", err)
	}

	userID, err := s.userRepository.CreateUser(username, hashedPassword)
	if err != nil {
		return "", "", err // Propagates ErrUserAlreadyExists if the name is taken.
	}

	token, err := auth.GenerateToken(userID, username, s.tokenDuration)
	if err != nil {
		return "", "", errors.ErrTokenGeneration
	}

	return userID, Token(token), nil
}

func (s *AuthService) Authenticate(username, password string) (bool, error) {
	user, err := s.userRepository.GetUserByUsername(username)
	if repositories.IsNotFound(err) {
		// Unknown user and wrong password are indistinguishable to
		// prevent user enumeration.
		return false, nil
	}
	if err != nil {
		return false, err
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil {
		return false, err
	}
	return match, nil
}

func (s *AuthService) Login(username, password string) (bool, Token, error) {
	ok, err := s.Authenticate(username, password)
	if err != nil || !ok {
		return false, "", err
	}

	user, err := s.userRepository.GetUserByUsername(username)
	if err != nil {
		return false, "", err
	}

	token, err := auth.GenerateToken(user.ID, username, s.tokenDuration)
	if err != nil {
		return false, "", errors.ErrTokenGeneration
	}
	return true, Token(token), nil
}
