package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/frahmantamala/payment-gateway/internal"
	merchantdatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/merchant"
)

// Credentials of the demo merchant created by the seeder.
const (
	TestMerchantID            = "550e8400-e29b-41d4-a716-446655440000"
	TestMerchantName          = "Test Merchant"
	TestMerchantEmail         = "test@example.com"
	TestMerchantAPIKey        = "key_test_abc123"
	TestMerchantAPISecret     = "secret_test_xyz789"
	TestMerchantWebhookSecret = "whsec_test_abc123"
)

// Service is the main auth service with dependencies
type Service struct {
	repo           MerchantRepository
	tokenGenerator TokenGenerator
	bcryptCost     int
	logger         *slog.Logger
}

// NewService creates a new auth service
func NewService(repo MerchantRepository, tokenGen TokenGenerator, bcryptCost int, logger *slog.Logger) *Service {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		repo:           repo,
		tokenGenerator: tokenGen,
		bcryptCost:     bcryptCost,
		logger:         logger,
	}
}

// NewJWTTokenGenerator creates a new JWT token generator
func NewJWTTokenGenerator(secret string, ttl time.Duration) *JWTTokenGenerator {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &JWTTokenGenerator{
		Secret:         []byte(secret),
		AccessTokenTTL: ttl,
	}
}

// Authenticate checks an API key/secret pair.
func (s *Service) Authenticate(ctx context.Context, apiKey, apiSecret string) (*Merchant, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, apperrors.ErrInvalidCredentials
	}

	dm, err := s.repo.GetByAPIKey(ctx, apiKey)
	if errors.Is(err, ErrMerchantNotFound) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load merchant by api key: %w", err)
	}

	if !dm.IsActive || !verifySecret(dm.APISecret, apiSecret) {
		return nil, apperrors.ErrInvalidCredentials
	}
	return FromDataModel(dm), nil
}

// verifySecret accepts bcrypt hashes and, for rows created before hashing, plain values.
func verifySecret(stored, given string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}

// IssueToken validates credentials and returns a bearer token
func (s *Service) IssueToken(ctx context.Context, dto TokenRequest) (*AuthTokens, error) {
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	m, err := s.Authenticate(ctx, dto.APIKey, dto.APISecret)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokenGenerator.GenerateAccessToken(m.ID)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	s.logger.Info("merchant token issued", "merchant_id", m.ID)
	return &AuthTokens{AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt}, nil
}

// MerchantFromToken resolves the merchant behind a bearer token.
func (s *Service) MerchantFromToken(ctx context.Context, token string) (*Merchant, error) {
	claims, err := s.tokenGenerator.ValidateToken(token)
	if errors.Is(err, ErrTokenExpired) {
		return nil, apperrors.ErrTokenExpired
	}
	if err != nil {
		return nil, apperrors.ErrInvalidToken
	}

	dm, err := s.repo.GetByID(ctx, claims.MerchantID)
	if errors.Is(err, ErrMerchantNotFound) {
		return nil, apperrors.ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("load merchant: %w", err)
	}
	if !dm.IsActive {
		return nil, apperrors.ErrInvalidCredentials
	}
	return FromDataModel(dm), nil
}

// GetMerchant loads a merchant by id.
func (s *Service) GetMerchant(ctx context.Context, id string) (*Merchant, error) {
	dm, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromDataModel(dm), nil
}

// HashSecret creates a bcrypt hash of an API secret
func (s *Service) HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// SeedTestMerchant upserts the demo merchant. An existing row only gets its webhook secret refreshed.
func (s *Service) SeedTestMerchant(ctx context.Context) (*Merchant, error) {
	hash, err := s.HashSecret(TestMerchantAPISecret)
	if err != nil {
		return nil, fmt.Errorf("hash test merchant secret: %w", err)
	}

	webhookSecret := TestMerchantWebhookSecret
	dm := &merchantdatamodel.Merchant{
		ID:            TestMerchantID,
		Name:          TestMerchantName,
		Email:         TestMerchantEmail,
		APIKey:        TestMerchantAPIKey,
		APISecret:     hash,
		WebhookSecret: &webhookSecret,
		IsActive:      true,
	}
	if err := s.repo.UpsertByEmail(ctx, dm); err != nil {
		return nil, fmt.Errorf("seed test merchant: %w", err)
	}

	s.logger.Info("test merchant seeded", "merchant_id", TestMerchantID, "email", TestMerchantEmail)
	return s.GetTestMerchant(ctx)
}

func (s *Service) GetTestMerchant(ctx context.Context) (*Merchant, error) {
	dm, err := s.repo.GetByEmail(ctx, TestMerchantEmail)
	if err != nil {
		return nil, err
	}
	return FromDataModel(dm), nil
}

// GenerateAccessToken creates a new access token
func (j *JWTTokenGenerator) GenerateAccessToken(merchantID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(j.AccessTokenTTL)

	claims := &Claims{
		MerchantID: merchantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   merchantID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.Secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates a JWT token and returns claims
func (j *JWTTokenGenerator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.Secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.MerchantID != "" {
		return claims, nil
	}

	return nil, ErrInvalidToken
}
