package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// parseBearer validates an HS256 bearer token from the Authorization
// header.  found is false when no bearer header was sent at all.
func parseBearer(c echo.Context, secret string) (claims jwt.MapClaims, found bool, err error) {
	auth := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return nil, false, nil
	}
	raw := strings.TrimPrefix(auth, "Bearer ")
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, echo.ErrUnauthorized
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return nil, true, echo.ErrUnauthorized
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, true, echo.ErrUnauthorized
	}
	return claims, true, nil
}

// setIdentity stores the subject as a uint64 user_id and the role claim
// in the context.
func setIdentity(c echo.Context, claims jwt.MapClaims) {
	switch sub := claims["sub"].(type) {
	case float64:
		if sub > 0 {
			c.Set("user_id", uint64(sub))
		}
	case string:
		if id, err := strconv.ParseUint(sub, 10, 64); err == nil && id > 0 {
			c.Set("user_id", id)
		}
	}
	if role, ok := claims["role"].(string); ok {
		c.Set("role", role)
	}
}

// JWTAuth rejects requests without a valid bearer token and otherwise
// injects user_id and role into the context.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, found, err := parseBearer(c, secret)
			if !found {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			setIdentity(c, claims)
			return next(c)
		}
	}
}

// OptionalIdentity lets guests through.  A request that does carry a
// bearer token must carry a valid one; its identity is then attached.
func OptionalIdentity(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, found, err := parseBearer(c, secret)
			if found && err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			if found {
				setIdentity(c, claims)
			}
			return next(c)
		}
	}
}

// userID returns the authenticated user id as a string, or "anon".
func userID(c echo.Context) string {
	if id, ok := c.Get("user_id").(uint64); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
