package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"

	"garagechat/backend/internal/models"
	"garagechat/backend/internal/roomkey"
)

const participantKey = "participantID"

var errInvalidToken = errors.New("invalid token")

// Authenticator issues and validates bearer tokens.
type Authenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(secret, issuer string, ttl time.Duration) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for participantID.
func (a *Authenticator) Issue(participantID string) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   participantID,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Parse validates tokenString and returns the participant it was issued to.
func (a *Authenticator) Parse(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: no subject", errInvalidToken)
	}
	return claims.Subject, nil
}

// Required rejects requests without a valid bearer token. WebSocket clients
// that cannot set headers may pass the token as ?token=.
func (a *Authenticator) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			tokenString = strings.TrimPrefix(header, "Bearer ")
		} else {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
			return
		}

		id, err := a.Parse(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
			return
		}
		c.Set(participantKey, id)
		c.Next()
	}
}

func participantID(c *gin.Context) string {
	return c.GetString(participantKey)
}

type tokenRequest struct {
	ID    string   `json:"id"`
	Name  string   `json:"name" binding:"required"`
	Roles []string `json:"roles"`
}

// IssueToken registers or updates a participant and returns a token for it.
// Identity proofing belongs to the booking side; this endpoint trusts its
// caller.
func (h *Handler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	if strings.Contains(req.ID, roomkey.Separator) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must not contain " + roomkey.Separator})
		return
	}

	// An empty id is assigned by the participant's BeforeCreate hook.
	p := &models.Participant{ID: req.ID, Name: strings.TrimSpace(req.Name), Roles: req.Roles}
	if err := h.Storage.SaveParticipant(p); err != nil {
		h.logger.Error().Err(err).Str("participant", p.ID).Msg("failed to save participant")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save participant"})
		return
	}

	token, err := h.Auth.Issue(p.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "id": p.ID})
}
