package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/identity"
)

const (
	contextTokenKey     = "userToken"
	contextRequesterKey = "requester"
	tokenAudience       = "Hazira"
)

var NowFunc = time.Now // mockable

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

func (c Claims) Requester() identity.Requester {
	return identity.Requester{ID: c.Subject, Name: c.Name, Roles: c.Roles}
}

func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// NewClaims returns the claims of a token issued to `requester`.
func NewClaims(requester identity.Requester, conf *core.Config) *Claims {
	now := NowFunc()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   requester.ID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Name:  requester.Name,
		Roles: requester.Roles,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(claims *Claims, conf *core.Config) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getRequester returns the authenticated caller. The value is built once per request.
func getRequester(ctx echo.Context) (identity.Requester, error) {
	if requester, ok := ctx.Get(contextRequesterKey).(identity.Requester); ok {
		return requester, nil
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return identity.Requester{}, err
	}
	requester := claims.Requester()
	if requester.IsAnonymous() {
		return identity.Requester{}, errUnauthorized
	}
	ctx.Set(contextRequesterKey, requester)
	return requester, nil
}

func contextHasAnyRole(ctx echo.Context, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	requester, err := getRequester(ctx)
	if err != nil {
		return false
	}
	for _, role := range roles {
		if requester.HasRole(role) {
			return true
		}
	}
	return false
}
