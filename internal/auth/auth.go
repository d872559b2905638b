package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	merchantdatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/merchant"
)

const (
	HeaderAPIKey    = "X-Api-Key"
	HeaderAPISecret = "X-Api-Secret"
)

// Merchant is the authenticated account behind a request.
type Merchant struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	APIKey        string    `json:"api_key"`
	WebhookURL    *string   `json:"webhook_url"`
	WebhookSecret *string   `json:"-"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

func FromDataModel(dm *merchantdatamodel.Merchant) *Merchant {
	return &Merchant{
		ID:            dm.ID,
		Name:          dm.Name,
		Email:         dm.Email,
		APIKey:        dm.APIKey,
		WebhookURL:    dm.WebhookURL,
		WebhookSecret: dm.WebhookSecret,
		IsActive:      dm.IsActive,
		CreatedAt:     dm.CreatedAt,
	}
}

type MerchantRepository interface {
	GetByID(ctx context.Context, id string) (*merchantdatamodel.Merchant, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*merchantdatamodel.Merchant, error)
	GetByEmail(ctx context.Context, email string) (*merchantdatamodel.Merchant, error)
	UpsertByEmail(ctx context.Context, m *merchantdatamodel.Merchant) error
	UpdateWebhookConfig(ctx context.Context, id string, url, secret *string) error
}

// TokenGenerator issues and checks merchant access tokens.
type TokenGenerator interface {
	GenerateAccessToken(merchantID string) (token string, expiresAt time.Time, err error)
	ValidateToken(tokenString string) (*Claims, error)
}

type AuthTokens struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Claims represents JWT token claims
type Claims struct {
	MerchantID string `json:"merchant_id"`
	jwt.RegisteredClaims
}

type JWTTokenGenerator struct {
	Secret         []byte
	AccessTokenTTL time.Duration
}

var (
	ErrMerchantNotFound = errors.New("merchant not found")
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
)
