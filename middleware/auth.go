package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"

	"Workbench/Cache"
	"Workbench/Models"
)

const (
	AccessTokenCookie = "accessToken"
	userLocal         = "user"
)

// Claims is the access token payload.
type Claims struct {
	UserID    string      `json:"userId"`
	Email     string      `json:"email"`
	Role      Models.Role `json:"role"`
	CompanyID string      `json:"companyId"`
	jwt.RegisteredClaims
}

// Auth issues and verifies access tokens and resolves the calling user.
type Auth struct {
	DB        *gorm.DB
	Cache     Cache.Cache
	Secret    []byte
	ExpiresIn time.Duration
	now       func() time.Time
}

func NewAuth(db *gorm.DB, cache Cache.Cache, secret string, expiresIn time.Duration) *Auth {
	if cache == nil {
		cache = Cache.Noop{}
	}
	return &Auth{DB: db, Cache: cache, Secret: []byte(secret), ExpiresIn: expiresIn, now: time.Now}
}

// IssueToken signs an HS256 access token for user.
func (a *Auth) IssueToken(user Models.User) (string, time.Time, error) {
	now := a.now()
	expires := now.Add(a.ExpiresIn)
	claims := Claims{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		CompanyID: user.CompanyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expires, nil
}

func (a *Auth) ParseToken(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Verify authenticates the request from a Bearer header or the
// accessToken cookie. The user is looked up in the cache first and
// stored in c.Locals for handlers.
func (a *Auth) Verify() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := bearerToken(c.Get(fiber.HeaderAuthorization))
		if raw == "" {
			raw = strings.TrimSpace(c.Cookies(AccessTokenCookie))
		}
		if raw == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Unauthorized access")
		}

		claims, err := a.ParseToken(raw)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return fiber.NewError(fiber.StatusUnauthorized, "Access token expired")
			}
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid access token")
		}

		user, err := a.loadUser(c, claims.UserID)
		if err != nil {
			return err
		}

		c.Locals(userLocal, user)
		return c.Next()
	}
}

func (a *Auth) loadUser(c *fiber.Ctx, userID string) (Models.SessionUser, error) {
	ctx := c.UserContext()
	key := Cache.UserKey(userID)

	var cached Models.SessionUser
	found, err := a.Cache.Get(ctx, key, &cached)
	if err != nil {
		slog.ErrorContext(ctx, "Redis cache error", "error", err)
	}
	if found {
		return cached, nil
	}

	var user Models.User
	if err := a.DB.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Models.SessionUser{}, fiber.NewError(fiber.StatusUnauthorized, "User not found")
		}
		return Models.SessionUser{}, err
	}

	session := user.Session()
	if err := a.Cache.Set(ctx, key, session, Cache.SessionTTL); err != nil {
		slog.ErrorContext(ctx, "Redis cache set error", "error", err)
	}
	return session, nil
}

// Forget drops the cached session of userID.
func (a *Auth) Forget(c *fiber.Ctx, userID string) {
	if err := a.Cache.Delete(c.UserContext(), Cache.UserKey(userID)); err != nil {
		slog.ErrorContext(c.UserContext(), "Redis cache delete error", "error", err)
	}
}

func bearerToken(header string) string {
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// CurrentUser returns the user stored by Verify.
func CurrentUser(c *fiber.Ctx) (Models.SessionUser, bool) {
	user, ok := c.Locals(userLocal).(Models.SessionUser)
	return user, ok
}

// RequireRole lets the request through only for the listed roles.
func RequireRole(roles ...Models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := CurrentUser(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "Unauthorized access")
		}
		for _, role := range roles {
			if user.Role == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "Access forbidden")
	}
}

func RequireManager() fiber.Handler {
	return requireExactly(Models.RoleManager, "Manager access required")
}

func RequireEmployee() fiber.Handler {
	return requireExactly(Models.RoleEmployee, "Employee access required")
}

func requireExactly(role Models.Role, message string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := CurrentUser(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "Unauthorized access")
		}
		if user.Role != role {
			return fiber.NewError(fiber.StatusForbidden, message)
		}
		return c.Next()
	}
}
