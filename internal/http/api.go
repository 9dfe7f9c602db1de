package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"deafauth/internal/domain"
	"deafauth/internal/service"
)

const (
	serviceName    = "DeafAuth"
	serviceVersion = "1.0.0"
)

// Authenticator resolves a bearer token to the account it was issued for.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (*domain.User, error)
}

// UserCounter reports how many accounts exist.
type UserCounter interface {
	Count(ctx context.Context) (int, error)
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	users          service.UserService
	guard          Authenticator
	counter        UserCounter
	allowedOrigins []string
	log            logrus.FieldLogger
}

func NewHandler(users service.UserService, guard Authenticator, counter UserCounter, allowedOrigins []string, log logrus.FieldLogger) *Handler {
	registerValidatorTags()
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		users:          users,
		guard:          guard,
		counter:        counter,
		allowedOrigins: allowedOrigins,
		log:            log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLogger(h.log), corsMiddleware(h.allowedOrigins))

	router.GET("/", h.root)
	router.GET("/health", h.health)

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", h.register)
		authGroup.POST("/signin", h.signIn)
		// legacy clients still post to /auth/login
		authGroup.POST("/login", h.signIn)

		protected := authGroup.Group("", h.requireAuth())
		protected.GET("/profile", h.profile)
		protected.PUT("/accessibility-preferences", h.updatePreferences)
	}
}

type registerRequest struct {
	Username                  string             `json:"username" binding:"required"`
	Email                     string             `json:"email" binding:"required,email"`
	Password                  string             `json:"password" binding:"required,max=72"`
	PreferredSignLanguage     *string            `json:"preferred_sign_language"`
	AccessibilityPreferences  domain.Preferences `json:"accessibility_preferences"`
	DeafCommunityVerification *bool              `json:"deaf_community_verification"`
}

type signInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// SignInResponse is returned by /auth/signin and /auth/login.
type SignInResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresIn   int64           `json:"expires_in"`
	UserProfile *domain.Profile `json:"user_profile"`
}

func (h *Handler) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":     serviceName,
		"description": "Identity verification and authentication for the deaf community",
		"status":      "active",
		"version":     serviceVersion,
		"ecosystem":   "MBTQ Universe",
	})
}

func (h *Handler) health(c *gin.Context) {
	resp := gin.H{
		"service":              serviceName,
		"status":               "healthy",
		"timestamp":            time.Now().UTC().Format(time.RFC3339),
		"deaf_community_ready": true,
	}
	if h.counter != nil {
		n, err := h.counter.Count(c.Request.Context())
		if err != nil {
			h.log.WithError(err).Error("health: count users")
			resp["status"] = "degraded"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		resp["users"] = n
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, bindingError(err))
		return
	}

	profile, err := h.users.Register(c.Request.Context(), service.RegisterInput{
		Username:                  req.Username,
		Email:                     req.Email,
		Password:                  req.Password,
		PreferredSignLanguage:     req.PreferredSignLanguage,
		AccessibilityPreferences:  req.AccessibilityPreferences,
		DeafCommunityVerification: req.DeafCommunityVerification,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "DeafAuth account created successfully for " + profile.Username + ". Welcome to the deaf-friendly MBTQ ecosystem!",
	})
}

func (h *Handler) signIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, bindingError(err))
		return
	}

	res, err := h.users.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SignInResponse{
		AccessToken: res.AccessToken,
		TokenType:   "bearer",
		ExpiresIn:   int64(res.ExpiresIn / time.Second),
		UserProfile: res.Profile,
	})
}

func (h *Handler) profile(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c).Profile())
}

func (h *Handler) updatePreferences(c *gin.Context) {
	var prefs domain.Preferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "accessibility preferences must be a JSON object"})
		return
	}

	profile, err := h.users.UpdatePreferences(c.Request.Context(), currentUser(c).ID, prefs)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Accessibility preferences updated successfully",
		"user_profile": profile,
	})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrDuplicateEmail):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email already registered in DeafAuth system"})
	case errors.Is(err, service.ErrWeakUsername), errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password for DeafAuth system"})
	case errors.Is(err, service.ErrUnauthorized):
		abortUnauthorized(c)
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	default:
		h.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
