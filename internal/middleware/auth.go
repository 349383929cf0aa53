package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"hms-sync/internal/models"
)

const (
	identityKey = "identity"
	tokenKey    = "token"

	accessTokenCookie = "access_token"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the fields the hospital backend puts in its access tokens.
type Claims struct {
	ID         string `json:"_id"`
	UserID     string `json:"userId"`
	HospitalID string `json:"hospital_ID"`
	jwt.RegisteredClaims
}

// TokenValidator checks backend-issued HS256 tokens.
type TokenValidator struct {
	secret []byte
}

func NewTokenValidator(secret string) *TokenValidator {
	return &TokenValidator{secret: []byte(secret)}
}

// Validate parses raw and returns the identity it carries.
func (v *TokenValidator) Validate(raw string) (models.Identity, error) {
	if raw == "" || len(v.secret) == 0 {
		return models.Identity{}, ErrInvalidToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !token.Valid {
		return models.Identity{}, ErrInvalidToken
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.ID
	}
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return models.Identity{}, ErrInvalidToken
	}
	return models.Identity{UserID: userID, HospitalID: claims.HospitalID}, nil
}

// TokenFromRequest reads a bearer token from the Authorization header, the
// access_token cookie or the token query parameter, in that order.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie, err := r.Cookie(accessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.URL.Query().Get("token")
}

// AuthMiddleware rejects requests without a valid token and stores the
// identity and raw token on the context.
func AuthMiddleware(v *TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := TokenFromRequest(c.Request)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		id, err := v.Validate(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(identityKey, id)
		c.Set(tokenKey, raw)
		c.Next()
	}
}

// IdentityFrom returns the identity stored by AuthMiddleware.
func IdentityFrom(c *gin.Context) (models.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return models.Identity{}, false
	}
	id, ok := v.(models.Identity)
	return id, ok
}

// TokenFrom returns the raw token stored by AuthMiddleware.
func TokenFrom(c *gin.Context) string {
	return c.GetString(tokenKey)
}

// SetIdentity stores id and token on c. Tests use it to skip token parsing.
func SetIdentity(c *gin.Context, id models.Identity, token string) {
	c.Set(identityKey, id)
	c.Set(tokenKey, token)
}
