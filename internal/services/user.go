package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"neonmatch-backend/internal/models"
	"neonmatch-backend/internal/state"

	"github.com/golang-jwt/jwt/v5"
)

const jwtExpDays = 7

var (
	// ErrUserNotFound is returned when a session points at a user that no longer exists
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidPhoto is returned when the profile photo is not an image
	ErrInvalidPhoto = errors.New("photo must be an image data URI or URL")
)

// UserService handles registration and sessions
type UserService struct {
	store     *state.Store
	jwtSecret string
}

// NewUserService creates a new user service
func NewUserService(store *state.Store, jwtSecret string) *UserService {
	return &UserService{
		store:     store,
		jwtSecret: jwtSecret,
	}
}

// RegisterRequest represents a registration form
type RegisterRequest struct {
	Name     string `json:"name"`
	Bio      string `json:"bio"`
	PhotoURL string `json:"photo_url"`
}

// RegisterResponse carries the new user and its session token
type RegisterResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// Register creates a user and issues a session token for it
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	photo := strings.TrimSpace(req.PhotoURL)
	if photo != "" && !validPhoto(photo) {
		return nil, ErrInvalidPhoto
	}
	var photoURL *string
	if photo != "" {
		photoURL = &photo
	}

	user, err := s.store.Register(ctx, req.Name, req.Bio, photoURL)
	if err != nil {
		return nil, err
	}

	token, err := s.GenerateJWT(*user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &RegisterResponse{User: user, Token: token}, nil
}

func validPhoto(p string) bool {
	return strings.HasPrefix(p, "data:image/") ||
		strings.HasPrefix(p, "https://") ||
		strings.HasPrefix(p, "http://")
}

// GetUser returns the user with the given number
func (s *UserService) GetUser(userID int64) (*models.User, error) {
	u, ok := s.store.User(userID)
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

// Session identifies the user a token was issued to. JoinedAt tells apart
// users that reuse a number after a reset.
type Session struct {
	UserID   int64
	JoinedAt models.Millis
}

// GenerateJWT generates a session token for a user
func (s *UserService) GenerateJWT(user models.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id":   strconv.FormatInt(user.ID, 10),
		"joined_at": strconv.FormatInt(int64(user.JoinedAt), 10),
		"exp":       time.Now().AddDate(0, 0, jwtExpDays).Unix(),
		"iat":       time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateJWT validates a session token and returns its session
func (s *UserService) ValidateJWT(tokenString string) (*Session, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	userID, err := intClaim(claims, "user_id")
	if err != nil {
		return nil, err
	}
	joinedAt, err := intClaim(claims, "joined_at")
	if err != nil {
		return nil, err
	}

	return &Session{UserID: userID, JoinedAt: models.Millis(joinedAt)}, nil
}

func intClaim(claims jwt.MapClaims, name string) (int64, error) {
	raw, ok := claims[name].(string)
	if !ok {
		return 0, fmt.Errorf("%s not found in token", name)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s in token: %w", name, err)
	}
	return n, nil
}

// Authenticate validates a token and checks that its user still exists and
// is the one the token was issued to. While the store is loading a user that
// is not known yet is let through.
func (s *UserService) Authenticate(tokenString string) (int64, error) {
	session, err := s.ValidateJWT(tokenString)
	if err != nil {
		return 0, err
	}
	if !s.store.Connected() {
		return session.UserID, nil
	}
	u, ok := s.store.User(session.UserID)
	switch {
	case ok && u.JoinedAt != session.JoinedAt:
		return 0, ErrUserNotFound
	case !ok && !s.store.Loading():
		return 0, ErrUserNotFound
	}
	return session.UserID, nil
}
