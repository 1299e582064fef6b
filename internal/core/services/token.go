package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

const ticketLifetime = 24 * time.Hour

// SessionClaims is what a validated session ticket resolves to. SessionID
// doubles as the realtime listener id for the connection the ticket opened.
type SessionClaims struct {
	UserID    string
	SessionID string
}

// TokenService issues and validates session tickets. A ticket can be
// revoked server-side between messages, so delivery adapters revalidate
// before every write; revocations live in a TTL cache sized to the
// remaining ticket lifetime.
type TokenService struct {
	secretKey []byte
	issuer    string
	revoked   *ttlcache.Cache[string, struct{}]
}

func NewTokenService(secret string) *TokenService {
	revoked := ttlcache.New[string, struct{}]()
	go revoked.Start()
	return &TokenService{
		secretKey: []byte(secret),
		issuer:    "money-back",
		revoked:   revoked,
	}
}

func (s *TokenService) Close() {
	s.revoked.Stop()
}

// IssueTicket mints a ticket for a new client session and returns it with
// the generated session id.
func (s *TokenService) IssueTicket(userID string) (ticket, sessionID string, err error) {
	sessionID = uuid.NewString()
	claims := jwt.MapClaims{
		"sub": userID,
		"sid": sessionID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ticketLifetime).Unix(),
		"iss": s.issuer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ticket, err = token.SignedString(s.secretKey)
	return ticket, sessionID, err
}

// ValidateTicket parses the ticket, checks the signature and expiry, and
// rejects revoked sessions.
func (s *TokenService) ValidateTicket(tokenStr string) (*SessionClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid ticket")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return nil, fmt.Errorf("subject not found in ticket")
	}
	sid, ok := claims["sid"].(string)
	if !ok {
		return nil, fmt.Errorf("session not found in ticket")
	}
	if s.revoked.Has(sid) {
		return nil, fmt.Errorf("session revoked")
	}
	return &SessionClaims{UserID: sub, SessionID: sid}, nil
}

// Revoke invalidates one session. Subsequent adapter revalidations fail and
// the adapter drops writes silently.
func (s *TokenService) Revoke(sessionID string) {
	s.revoked.Set(sessionID, struct{}{}, ticketLifetime)
}
