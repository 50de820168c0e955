package api

import (
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v4"
)

const defaultKeyCacheTTL = 15 * time.Minute

var (
	errTokenExpired = errors.New("token expired")
	errInvalidToken = errors.New("invalid token")
)

// Auth issues tokens for local accounts and validates incoming bearer tokens.
// Locally issued tokens are HS256 signed with the shared secret. When a JWKS
// is configured, RS256 tokens from the external identity provider are
// accepted as well.
type Auth struct {
	secret []byte
	ttl    time.Duration

	JWKS     *keyfunc.JWKS
	Audience string
	Issuer   string

	hsParser    *jwt.Parser
	rsParser    *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth creates an Auth that signs and verifies with the given secret.
// Tokens expire ttl after issuance.
func NewAuth(secret []byte, ttl time.Duration) *Auth {
	if len(secret) == 0 {
		panic("api.NewAuth: signing secret must not be empty")
	}
	if ttl <= 0 {
		panic("api.NewAuth: token ttl must be positive")
	}
	return &Auth{
		secret:      secret,
		ttl:         ttl,
		hsParser:    jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
		rsParser:    jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
		keyCacheTTL: defaultKeyCacheTTL,
	}
}

// IssueToken signs a token whose subject is the given user id.
func (a *Auth) IssueToken(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// UserIDFromAuthHeader extracts the user identifier from the Authorization header.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	token, err := bearerTokenFromString(h)
	if err != nil {
		return "", err
	}
	return a.UserIDFromBearer(token)
}

// UserIDFromBearer verifies the token and returns its subject.
func (a *Auth) UserIDFromBearer(tokenStr string) (string, error) {
	external := a.JWKS != nil && tokenAlgorithm(tokenStr) == "RS256"

	var parsedToken *jwt.Token
	var err error
	if external {
		parsedToken, err = a.rsParser.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			return a.keyForToken(t)
		})
	} else {
		parsedToken, err = a.hsParser.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.secret, nil
		})
	}
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", errTokenExpired
		}
		return "", errInvalidToken
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return "", errInvalidToken
	}

	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return "", errTokenExpired
	}
	if !claims.VerifyNotBefore(now, false) {
		return "", errInvalidToken
	}
	if external {
		if a.Audience != "" && !claims.VerifyAudience(a.Audience, false) {
			return "", errInvalidToken
		}
		if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false) {
			return "", errInvalidToken
		}
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errInvalidToken
	}

	return sub, nil
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(a.keyCacheTTL)})
	}
	return key, nil
}

// tokenAlgorithm peeks at the unverified JOSE header to route verification.
func tokenAlgorithm(tokenStr string) string {
	end := 0
	for end < len(tokenStr) && tokenStr[end] != '.' {
		end++
	}
	raw, err := base64.RawURLEncoding.DecodeString(tokenStr[:end])
	if err != nil {
		return ""
	}
	var header struct {
		Alg string `json:"alg"`
	}
	if err := sonic.Unmarshal(raw, &header); err != nil {
		return ""
	}
	return header.Alg
}
