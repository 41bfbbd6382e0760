package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Nonce actions. A nonce is only valid for the action it was issued for.
const (
	ActionCommunity         = "app_community_action"
	ActionEvent             = "app_event_action"
	ActionAppNonce          = "app_nonce"
	ActionConversationReply = "app_conversation_reply"
	ActionGuestRSVP         = "guest_rsvp"
)

const nonceIssuer = "circles/nonce"

// NonceService issues short-lived, action-scoped tokens that guard state
// changing requests. They are signed JWTs, so nothing is stored server side.
type NonceService struct {
	secret []byte
	ttl    time.Duration
}

type nonceClaims struct {
	Action string `json:"act"`
	jwt.RegisteredClaims
}

func NewNonceService(secret string, ttl time.Duration) (*NonceService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: nonce secret must be at least 16 characters")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: nonce ttl must be positive")
	}
	return &NonceService{secret: []byte(secret), ttl: ttl}, nil
}

// Create issues a nonce for action bound to userID. Guests use userID 0.
func (n *NonceService) Create(action string, userID int64) (string, error) {
	if action == "" {
		return "", errors.New("auth: nonce action is required")
	}
	now := time.Now()
	c := nonceClaims{
		Action: action,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    nonceIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(n.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(n.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing nonce: %w", err)
	}
	return signed, nil
}

// Verify reports whether token is a live nonce for action and userID.
func (n *NonceService) Verify(token, action string, userID int64) bool {
	if token == "" || action == "" {
		return false
	}
	c := &nonceClaims{}
	parsed, err := jwt.ParseWithClaims(token, c,
		func(*jwt.Token) (any, error) { return n.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(nonceIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return false
	}
	return c.Action == action && c.Subject == strconv.FormatInt(userID, 10) && c.ID != ""
}
