package middleware

import (
	"strconv"
	"strings"

	"airwave/internal/config"
	"airwave/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

var cfg *config.Config

// InitMiddleware initializes authentication middleware with the given config.
func InitMiddleware(c *config.Config) {
	cfg = c
}

// ParseBearerToken validates a JWT and returns the user ID from its subject
// claim. It is shared by the HTTP middleware and the websocket upgrade path,
// where authentication is optional.
func ParseBearerToken(tokenString string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, models.NewUnauthorizedError("invalid signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return 0, models.NewUnauthorizedError("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, models.NewUnauthorizedError("invalid token claims")
	}

	subStr, ok := claims["sub"].(string)
	if !ok {
		return 0, models.NewUnauthorizedError("invalid token subject")
	}

	userIDVal, err := strconv.ParseUint(subStr, 10, 32)
	if err != nil {
		return 0, models.NewUnauthorizedError("invalid user ID in token")
	}
	return uint(userIDVal), nil
}

// BearerFromHeader extracts the raw token from an Authorization header value.
func BearerFromHeader(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

// AuthRequired is a middleware that enforces authentication for protected routes.
func AuthRequired(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("authorization header required"))
	}

	tokenString, ok := BearerFromHeader(authHeader)
	if !ok {
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("invalid authorization header format"))
	}

	userID, err := ParseBearerToken(tokenString)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized, err)
	}

	c.Locals("userID", userID)
	return c.Next()
}
