package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core/account"
)

const (
	tokenContextKey    = "userToken"
	identityContextKey = "identity"
	tokenAudience      = "Kazi"
)

// Claims represents the authorization claims issued by the identity provider.
type Claims struct {
	jwt.StandardClaims
	Role  string `json:"role"`
	Code  string `json:"code,omitempty"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// NewClaims builds the claims asserting id for ttl.
func NewClaims(id account.Identity, issuer string, ttl time.Duration) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    issuer,
			Subject:   id.UserID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		Role:  id.Role.String(),
		Code:  id.Code,
		Email: id.Email,
		Name:  id.Name,
	}
}

// Identity converts the claims. Tokens carrying an unknown role are rejected.
func (c Claims) Identity() (account.Identity, error) {
	if c.Subject == "" {
		return account.Identity{}, errUnauthorized
	}
	role, err := account.ParseRole(c.Role)
	if err != nil {
		return account.Identity{}, errUnknownRole
	}
	return account.Identity{UserID: c.Subject, Role: role, Code: c.Code, Email: c.Email, Name: c.Name}, nil
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(secret []byte, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func newJWTMiddleware(secret []byte) echo.MiddlewareFunc {
	return middleware.JWTWithConfig(middleware.JWTConfig{
		SigningKey:    secret,
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    tokenContextKey,
		Claims:        new(Claims),
	})
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getContextIdentity returns the caller asserted by the request token.
func getContextIdentity(ctx echo.Context) (account.Identity, error) {
	if id, ok := ctx.Get(identityContextKey).(account.Identity); ok {
		return id, nil
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return account.Identity{}, err
	}
	id, err := claims.Identity()
	if err != nil {
		return account.Identity{}, err
	}
	ctx.Set(identityContextKey, id)
	return id, nil
}
