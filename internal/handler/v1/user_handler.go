package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/service"
)

type createUserRequest struct {
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Email     string          `json:"email"`
	Password  string          `json:"password"`
	Role      domain.Role     `json:"role"`
	Section   *domain.Section `json:"section"`
	Centre    *string         `json:"centre"`
}

type updateUserRequest struct {
	FullName *string         `json:"full_name"`
	Role     *domain.Role    `json:"role"`
	Section  *domain.Section `json:"section"`
	Centre   *string         `json:"centre"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

func NewUserHandler(svc UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

func (h *UserHandler) List(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	staff, err := h.svc.ListUsers(c.Request.Context(), actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, staff)
}

// Create returns the new account's credentials. They are shown once and
// cannot be fetched again.
func (h *UserHandler) Create(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req createUserRequest
	if !bindJSON(c, &req) {
		return
	}

	creds, err := h.svc.CreateUser(c.Request.Context(), &service.CreateUserCommand{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Role:      req.Role,
		Section:   req.Section,
		Centre:    req.Centre,
	}, actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	respondCreated(c, creds)
}

func (h *UserHandler) Update(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req updateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.svc.UpdateProfile(c.Request.Context(), id, &service.UpdateProfileCommand{
		FullName: req.FullName,
		Role:     req.Role,
		Section:  req.Section,
		Centre:   req.Centre,
	}, actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, p)
}

func (h *UserHandler) ResetPassword(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req resetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.svc.ResetPassword(c.Request.Context(), id, req.Password, actor); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *UserHandler) Delete(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	outcome, err := h.svc.DeleteUser(c.Request.Context(), id, actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, gin.H{"outcome": outcome})
}
