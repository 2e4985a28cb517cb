package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wardenproxy/warden/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
)

// AuthService manages management-plane accounts and issues the bearer
// tokens the identity-verification rule validates.
type AuthService struct {
	db     *gorm.DB
	secret []byte
	ttl    time.Duration
}

func NewAuthService(db *gorm.DB, secret string) *AuthService {
	return &AuthService{db: db, secret: []byte(secret), ttl: 24 * time.Hour}
}

// Register creates a user with a bcrypt password hash.
func (s *AuthService) Register(email, password, name, role string) (*models.User, error) {
	var existing models.User
	if err := s.db.Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if role == "" {
		role = "user"
	}
	user := models.User{
		UUID:  uuid.NewString(),
		Email: email,
		Name:  name,
		Role:  role,
	}
	if err := user.SetPassword(password); err != nil {
		return nil, err
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Login verifies credentials and returns a signed token.
func (s *AuthService) Login(email, password string) (string, error) {
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if !user.CheckPassword(password) {
		return "", ErrInvalidCredentials
	}
	return s.IssueToken(&user)
}

// IssueToken signs a token whose payload carries {user:{id,role}, exp}, the
// shape the identity-verification rule expects.
func (s *AuthService) IssueToken(user *models.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user": map[string]interface{}{
			"id":   user.UUID,
			"role": user.Role,
		},
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// GetByUUID retrieves a user by UUID.
func (s *AuthService) GetByUUID(id string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("uuid = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
