package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"courtbook/internal/models"
)

const actorKey = "actor"

// RoleClaim is one role grant carried in the access token.
type RoleClaim struct {
	RoleName models.Role  `json:"roleName"`
	Scope    models.Scope `json:"scope"`
	TenantID int64        `json:"tenantId,omitempty"`
	BranchID int64        `json:"branchId,omitempty"`
}

// Claims is the access token payload. The subject is the user ID.
type Claims struct {
	Email string      `json:"email"`
	Roles []RoleClaim `json:"roles"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 access tokens.
type Authenticator struct {
	secret []byte
	issuer string
}

func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// ParseActor validates token and returns the caller it identifies.
func (a *Authenticator) ParseActor(token string) (*models.Actor, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	actor := &models.Actor{UserID: claims.Subject, Email: strings.ToLower(strings.TrimSpace(claims.Email))}
	for _, r := range claims.Roles {
		actor.Grants = append(actor.Grants, models.RoleGrant{
			Role:     r.RoleName,
			Scope:    r.Scope,
			TenantID: r.TenantID,
			BranchID: r.BranchID,
		})
	}
	return actor, nil
}

// Issue signs a token for actor. Used by tooling and tests.
func (a *Authenticator) Issue(actor *models.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: actor.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	for _, g := range actor.Grants {
		claims.Roles = append(claims.Roles, RoleClaim{RoleName: g.Role, Scope: g.Scope, TenantID: g.TenantID, BranchID: g.BranchID})
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// OptionalAuth resolves a bearer token when present. A token that fails verification is rejected
// so clients can refresh it instead of silently acting as a guest.
func (a *Authenticator) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			c.Next()
			return
		}
		if !strings.HasPrefix(h, "Bearer ") {
			abortError(c, http.StatusUnauthorized, "unauthenticated", "Invalid or expired access token")
			return
		}
		actor, err := a.ParseActor(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			abortError(c, http.StatusUnauthorized, "unauthenticated", "Invalid or expired access token")
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequireAuth rejects requests without a valid bearer token.
func (a *Authenticator) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			abortError(c, http.StatusUnauthorized, "unauthenticated", "Access token is required")
			return
		}
		actor, err := a.ParseActor(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			abortError(c, http.StatusUnauthorized, "unauthenticated", "Invalid or expired access token")
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) *models.Actor {
	v, ok := c.Get(actorKey)
	if !ok {
		return nil
	}
	actor, _ := v.(*models.Actor)
	return actor
}
