package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"

	"github.com/assessly/assessment-service/internal/config"
	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
	"github.com/assessly/assessment-service/internal/services"
)

// ShareTokenHeader carries the anonymous access token on session routes.
const ShareTokenHeader = "X-Share-Token"

// CasdoorAuthMiddleware provides authentication using the Casdoor SDK
type CasdoorAuthMiddleware struct {
	client   *casdoorsdk.Client
	userRepo repositories.UserRepository
	config   config.CasdoorConfig
}

func NewCasdoorAuthMiddleware(cfg config.CasdoorConfig, userRepo repositories.UserRepository) *CasdoorAuthMiddleware {
	client := casdoorsdk.NewClient(
		cfg.Endpoint,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.Cert,
		cfg.Organization,
		cfg.Application,
	)

	return &CasdoorAuthMiddleware{
		client:   client,
		userRepo: userRepo,
		config:   cfg,
	}
}

// AuthMiddleware validates the bearer token and stores the user in the
// request context.
func (cam *CasdoorAuthMiddleware) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "missing or malformed authorization header",
			})
			c.Abort()
			return
		}

		claims, err := cam.client.ParseJwtToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": fmt.Sprintf("invalid token: %v", err),
			})
			c.Abort()
			return
		}

		user, err := cam.extractUserFromClaims(c.Request.Context(), claims)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": fmt.Sprintf("failed to extract user info: %v", err),
			})
			c.Abort()
			return
		}

		setUserContext(c, user)
		c.Next()
	}
}

// SessionAccessMiddleware admits either an authenticated user or an
// anonymous participant carrying a share token. Session routes accept
// both; the service layer verifies the token against the instance.
func (cam *CasdoorAuthMiddleware) SessionAccessMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			claims, err := cam.client.ParseJwtToken(token)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{
					"error":   "unauthorized",
					"message": fmt.Sprintf("invalid token: %v", err),
				})
				c.Abort()
				return
			}
			user, err := cam.extractUserFromClaims(c.Request.Context(), claims)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{
					"error":   "unauthorized",
					"message": fmt.Sprintf("failed to extract user info: %v", err),
				})
				c.Abort()
				return
			}
			setUserContext(c, user)
			c.Next()
			return
		}

		if shareToken := c.GetHeader(ShareTokenHeader); shareToken != "" {
			c.Set("share_token", shareToken)
			c.Next()
			return
		}

		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "authorization header or share token required",
		})
		c.Abort()
	}
}

// RequireRoleMiddleware checks if the user has one of the required
// roles. Admins always pass.
func (cam *CasdoorAuthMiddleware) RequireRoleMiddleware(requiredRoles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get("user_role")
		if !exists {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "user role not found in context",
			})
			c.Abort()
			return
		}

		role, ok := userRole.(models.UserRole)
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "invalid user role format",
			})
			c.Abort()
			return
		}

		hasRequiredRole := false
		for _, requiredRole := range requiredRoles {
			if role == requiredRole || role == models.RoleAdmin {
				hasRequiredRole = true
				break
			}
		}

		if !hasRequiredRole {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": fmt.Sprintf("insufficient permissions, required role: %v", requiredRoles),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func setUserContext(c *gin.Context, user *models.User) {
	c.Set("user_id", user.ID)
	c.Set("user", user)
	c.Set("user_role", user.Role)
	c.Set("user_email", user.Email)
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", false
	}
	return parts[1], true
}

// extractUserFromClaims extracts user information from JWT claims
func (cam *CasdoorAuthMiddleware) extractUserFromClaims(ctx context.Context, claims *casdoorsdk.Claims) (*models.User, error) {
	userID := claims.Id
	if userID == "" {
		return nil, fmt.Errorf("invalid user ID in token")
	}

	// Prefer the repository (cache-backed); fall back to the claims
	user, err := cam.userRepo.GetByID(ctx, userID)
	if err != nil {
		user = cam.createUserFromClaims(claims)
		if user == nil {
			return nil, fmt.Errorf("failed to create user from claims")
		}
	}

	return user, nil
}

// createUserFromClaims creates a user model from JWT claims
func (cam *CasdoorAuthMiddleware) createUserFromClaims(claims *casdoorsdk.Claims) *models.User {
	userID := claims.Id
	if userID == "" {
		return nil
	}

	avatarURL := claims.User.Avatar
	role := cam.mapCasdoorRoleToUserRole(claims.User.Type)

	return &models.User{
		ID:        userID,
		FullName:  claims.User.DisplayName,
		Email:     claims.User.Email,
		Role:      role,
		AvatarURL: &avatarURL,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// mapCasdoorRoleToUserRole maps Casdoor user type to internal role
func (cam *CasdoorAuthMiddleware) mapCasdoorRoleToUserRole(casdoorType string) models.UserRole {
	switch strings.ToLower(casdoorType) {
	case "admin", "administrator":
		return models.RoleAdmin
	case "instructor", "teacher", "educator":
		return models.RoleInstructor
	case "proctor", "supervisor":
		return models.RoleProctor
	default:
		return models.RoleParticipant
	}
}

// ===== CONTEXT HELPERS =====

// GetUserIDFromContext extracts the authenticated user ID from the Gin
// context.
func GetUserIDFromContext(c *gin.Context) (string, error) {
	userID, exists := c.Get("user_id")
	if !exists {
		return "", fmt.Errorf("user ID not found in context")
	}

	id, ok := userID.(string)
	if !ok {
		return "", fmt.Errorf("invalid user ID type in context")
	}

	return id, nil
}

// GetParticipantFromContext builds the session participant identity:
// the authenticated user, or the anonymous share-token holder.
func GetParticipantFromContext(c *gin.Context) (services.Participant, error) {
	ip := c.ClientIP()
	userAgent := c.Request.UserAgent()
	participant := services.Participant{
		IPAddress: &ip,
		UserAgent: &userAgent,
	}

	if userID, err := GetUserIDFromContext(c); err == nil {
		participant.UserID = &userID
		return participant, nil
	}

	if shareToken, exists := c.Get("share_token"); exists {
		token, ok := shareToken.(string)
		if !ok || token == "" {
			return participant, fmt.Errorf("invalid share token in context")
		}
		participant.ShareToken = &token
		if name := c.GetHeader("X-Participant-Name"); name != "" {
			participant.Name = &name
		}
		return participant, nil
	}

	return participant, fmt.Errorf("no participant identity in context")
}
