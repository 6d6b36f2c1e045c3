package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/hospital_desk/internal/logging"
	"github.com/Skotchmaster/hospital_desk/internal/models"
	"github.com/Skotchmaster/hospital_desk/internal/tokens"
)

const (
	ctxUserID   = "user_id"
	ctxRole     = "role"
	ctxIdentity = "identity"
)

type identityKey struct{}

type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Gate authenticates bearer tokens. Nothing is looked up per request except
// the revocation list.
type Gate struct {
	JWTSecret   []byte
	Revocations RevocationChecker
}

func NewGate(secret []byte, revocations RevocationChecker) *Gate {
	return &Gate{JWTSecret: secret, Revocations: revocations}
}

type ValidatorFunc func(id models.Identity) error

func (g *Gate) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return g.requireAuthWithValidator(next, nil)
}

func (g *Gate) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return g.requireAuthWithValidator(next, func(id models.Identity) error {
		if !id.IsAdmin() {
			return echo.NewHTTPError(http.StatusForbidden, "admin access required")
		}
		return nil
	})
}

func (g *Gate) requireAuthWithValidator(next echo.HandlerFunc, validator ValidatorFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		l := logging.FromContext(ctx)

		raw, ok := BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}

		claims, err := tokens.AccessClaimsFromToken(raw, g.JWTSecret)
		if err != nil {
			l.Warn("auth_failed", "status", 401, "reason", "invalid token", "error", err)
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		}

		if g.Revocations != nil {
			revoked, err := g.Revocations.IsRevoked(ctx, claims.ID)
			if err != nil {
				return fmt.Errorf("check revocation: %w", err)
			}
			if revoked {
				l.Warn("auth_failed", "status", 401, "reason", "token revoked", "user_id", claims.UserID)
				return echo.NewHTTPError(http.StatusUnauthorized, "token revoked")
			}
		}

		id := claims.Identity()
		if validator != nil {
			if err := validator(id); err != nil {
				l.Warn("auth_failed", "status", 403, "reason", "insufficient role", "user_id", id.UserID)
				return err
			}
		}

		setUserContext(c, id)
		return next(c)
	}
}

// BearerToken extracts the token from an Authorization header. The scheme is
// case-insensitive.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}

func setUserContext(c echo.Context, id models.Identity) {
	c.Set(ctxUserID, id.UserID)
	c.Set(ctxRole, id.Role)
	c.Set(ctxIdentity, id)

	ctx := context.WithValue(c.Request().Context(), identityKey{}, id)
	ctx, _ = logging.With(ctx, "user_id", id.UserID)
	c.SetRequest(c.Request().WithContext(ctx))
}

// IdentityFrom returns the identity stored by RequireAuth.
func IdentityFrom(c echo.Context) (models.Identity, bool) {
	id, ok := c.Get(ctxIdentity).(models.Identity)
	return id, ok
}

func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(models.Identity)
	return id, ok
}
