package auth

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Claims carried by bearer tokens issued by the platform's login service.
// The subject is the numeric user id.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type JWTConfig struct {
	SigningKey []byte
	Issuer     string
	Audience   string
}

// ParseToken validates tokenStr and returns the identity it names.
func ParseToken(cfg JWTConfig, tokenStr string) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	return identityFromStrings(claims.Subject, claims.Role)
}

func identityFromStrings(userID, role string) (Identity, error) {
	uid, err := strconv.ParseInt(userID, 10, 64)
	if err != nil || uid <= 0 {
		return Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid user id")
	}
	r, err := ParseRole(role)
	if err != nil {
		return Identity{}, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	return Identity{UserID: uid, Role: r}, nil
}

// bearerToken extracts the token from the Authorization header, falling back
// to the access_token query parameter on WebSocket upgrades, where browsers
// cannot set headers.
func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if tok := c.QueryParam("access_token"); tok != "" && isUpgrade(c.Request()) {
			return tok, nil
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return parts[1], nil
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func setIdentity(c echo.Context, id Identity) {
	ctx := WithIdentity(c.Request().Context(), id)
	c.SetRequest(c.Request().WithContext(ctx))
	c.Set("user_id", id.UserID)
}

// JWTMiddleware verifies the bearer token and places the resulting Identity
// on the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr, err := bearerToken(c)
			if err != nil {
				return err
			}
			id, err := ParseToken(cfg, tokenStr)
			if err != nil {
				return err
			}
			setIdentity(c, id)
			return next(c)
		}
	}
}

// DevAuthMiddleware trusts X-User-ID / X-User-Role headers (or user_id /
// role query parameters) so local clients can act as any user. Requests that
// do carry a bearer token are still verified when a signing key is set.
// Never enable outside development.
func DevAuthMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	verify := JWTMiddleware(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		verified := verify(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "" && len(cfg.SigningKey) > 0 {
				return verified(c)
			}

			uid := c.Request().Header.Get("X-User-ID")
			role := c.Request().Header.Get("X-User-Role")
			if uid == "" {
				uid = c.QueryParam("user_id")
				role = c.QueryParam("role")
			}
			if uid == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
			}
			id, err := identityFromStrings(uid, role)
			if err != nil {
				return err
			}
			setIdentity(c, id)
			return next(c)
		}
	}
}

// CurrentIdentity returns the identity for the request or a 401.
func CurrentIdentity(c echo.Context) (Identity, error) {
	id, ok := IdentityFromContext(c.Request().Context())
	if !ok || !id.Valid() {
		return Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	return id, nil
}
