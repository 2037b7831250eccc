package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/models"
	"github.com/prudhvinik1/homepresence/internal/repositories"
	"github.com/prudhvinik1/homepresence/internal/utils"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidToken       = errors.New("invalid token")
	ErrDeviceNotFound     = errors.New("device not found")
)

type AuthService struct {
	accountRepo repositories.AccountRepository
	deviceRepo  repositories.DeviceRepository
	sessionRepo repositories.SessionRepository
	jwtSecret   string
	jwtExpiry   time.Duration
}

type LoginRequest struct {
	Email      string
	Password   string
	DeviceID   *uuid.UUID // nil registers a new device
	DeviceName string
	DeviceType string
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	DeviceID  uuid.UUID `json:"device_id"`
	AccountID uuid.UUID `json:"account_id"`
}

type TokenClaims struct {
	AccountID uuid.UUID
	DeviceID  uuid.UUID
	SessionID string
}

func NewAuthService(
	accountRepo repositories.AccountRepository,
	deviceRepo repositories.DeviceRepository,
	sessionRepo repositories.SessionRepository,
	jwtSecret string,
	jwtExpiry time.Duration,
) *AuthService {
	return &AuthService{
		accountRepo: accountRepo,
		deviceRepo:  deviceRepo,
		sessionRepo: sessionRepo,
		jwtSecret:   jwtSecret,
		jwtExpiry:   jwtExpiry,
	}
}

func (s *AuthService) Register(ctx context.Context, email, password, displayName string) (*models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrInvalidCredentials
	}

	_, err := s.accountRepo.GetByEmail(ctx, email)
	if err == nil {
		return nil, ErrEmailExists
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	hashedPassword, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &models.Account{
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: hashedPassword,
	}
	err = s.accountRepo.Create(ctx, account)
	if errors.Is(err, repositories.ErrConflict) {
		return nil, ErrEmailExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	account, err := s.accountRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if !utils.CheckPassword(account.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}

	var device *models.Device
	if req.DeviceID != nil {
		device, err = s.deviceRepo.GetByID(ctx, *req.DeviceID)
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get device: %w", err)
		}
		if device.AccountID != account.ID || device.RevokedAt != nil {
			return nil, ErrDeviceNotFound
		}
	} else {
		device = &models.Device{
			AccountID:  account.ID,
			Name:       req.DeviceName,
			DeviceType: req.DeviceType,
		}
		if err := s.deviceRepo.Create(ctx, device); err != nil {
			return nil, fmt.Errorf("failed to create device: %w", err)
		}
	}

	now := time.Now()
	session := &models.Session{
		ID:        uuid.New().String(),
		AccountID: account.ID,
		DeviceID:  device.ID,
		ExpiresAt: now.Add(s.jwtExpiry),
		CreatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := s.generateToken(session, now)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &LoginResponse{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		AccountID: account.ID,
		DeviceID:  device.ID,
	}, nil
}

func (s *AuthService) generateToken(session *models.Session, issuedAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":       session.AccountID.String(),
		"device_id": session.DeviceID.String(),
		"jti":       session.ID,
		"exp":       session.ExpiresAt.Unix(),
		"iat":       issuedAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// VerifyToken checks the signature and expiry of a token and extracts its
// claims. It does not consult the session store; see Authenticate.
func (s *AuthService) VerifyToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	accountID, err := uuidClaim(claims, "sub")
	if err != nil {
		return nil, err
	}
	deviceID, err := uuidClaim(claims, "device_id")
	if err != nil {
		return nil, err
	}
	sessionID, ok := claims["jti"].(string)
	if !ok || sessionID == "" {
		return nil, ErrInvalidToken
	}

	return &TokenClaims{
		AccountID: accountID,
		DeviceID:  deviceID,
		SessionID: sessionID,
	}, nil
}

// Authenticate verifies the token and that its session was not revoked.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*TokenClaims, error) {
	claims, err := s.VerifyToken(tokenString)
	if err != nil {
		return nil, err
	}

	session, err := s.sessionRepo.GetByID(ctx, claims.SessionID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session.AccountID != claims.AccountID || session.DeviceID != claims.DeviceID {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Logout ends the session. A logged-out device should stop receiving
// friends' presence, so its push target is revoked as well.
func (s *AuthService) Logout(ctx context.Context, claims *TokenClaims) error {
	if err := s.sessionRepo.Delete(ctx, claims.SessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	device, err := s.deviceRepo.GetByID(ctx, claims.DeviceID)
	if err != nil {
		return fmt.Errorf("failed to get device: %w", err)
	}
	if device.PushToken != nil {
		if err := s.deviceRepo.ClearPushToken(ctx, *device.PushToken); err != nil {
			return fmt.Errorf("failed to clear push token: %w", err)
		}
	}
	return nil
}

func (s *AuthService) LogoutAll(ctx context.Context, claims *TokenClaims) error {
	if err := s.sessionRepo.DeleteAllForAccount(ctx, claims.AccountID); err != nil {
		return fmt.Errorf("failed to logout all sessions: %w", err)
	}
	return nil
}

func uuidClaim(claims jwt.MapClaims, name string) (uuid.UUID, error) {
	raw, ok := claims[name].(string)
	if !ok {
		return uuid.Nil, ErrInvalidToken
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}
