package functions

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/identity"
	"github.com/dmehra2102/prod-golang-projects/childscreen/pkg/auth"
)

type Handler struct {
	svc *Service
	log *zap.Logger
}

func NewHandler(svc *Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Register mounts the functions under /functions/v1, each behind the admin check.
func (h *Handler) Register(r *gin.Engine) {
	g := r.Group("/functions/v1", h.requireAdmin)
	g.POST("/"+identity.OpCreateUser, h.CreateUser)
	g.POST("/"+identity.OpResetPassword, h.ResetPassword)
	g.POST("/"+identity.OpDeleteUser, h.DeleteUser)
}

func (h *Handler) requireAdmin(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	if _, err := h.svc.Authorize(c.Request.Context(), token); err != nil {
		h.respondError(c, err)
		c.Abort()
		return
	}
	c.Next()
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req identity.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	id, err := h.svc.CreateUser(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": identity.CreateUserResponse{UserID: id}})
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req identity.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if err := h.svc.ResetPassword(c.Request.Context(), req); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"userId": req.UserID}})
}

func (h *Handler) DeleteUser(c *gin.Context) {
	var req identity.DeleteUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if err := h.svc.DeleteUser(c.Request.Context(), req); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"userId": req.UserID}})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"

	switch {
	case errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenTypeMismatch):
		status, msg = http.StatusUnauthorized, "invalid or expired session"
	case errors.Is(err, ErrNotAdmin):
		status, msg = http.StatusForbidden, "Only admins can manage users"
	case errors.Is(err, ErrPasswordShort):
		status, msg = http.StatusBadRequest, "Password should be at least 6 characters"
	case errors.Is(err, ErrInvalidInput):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrEmailTaken):
		status, msg = http.StatusConflict, "A user with this email address has already been registered"
	case errors.Is(err, domain.ErrUserNotFound):
		status, msg = http.StatusNotFound, "User not found"
	case errors.Is(err, domain.ErrTimeout):
		status, msg = http.StatusGatewayTimeout, "request timed out"
	default:
		h.log.Error("function failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	c.JSON(status, gin.H{"error": msg})
}
