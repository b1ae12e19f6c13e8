// Package session carries the authenticated caller through one request.
package session

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
)

const contextKey = "session"

// Session is the caller's identity and profile. A zero UserID means anonymous.
type Session struct {
	UserID      uuid.UUID
	Email       string
	AccessToken string
	Profile     *domain.Profile
}

func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != uuid.Nil && s.Profile != nil
}

func (s *Session) Role() domain.Role {
	if s.Profile == nil {
		return ""
	}
	return s.Profile.Role
}

func (s *Session) IsAdmin() bool {
	return s.Role() == domain.RoleAdmin
}

// Section is the clinician's assigned section, or nil.
func (s *Session) Section() *domain.Section {
	if s.Profile == nil {
		return nil
	}
	return s.Profile.Section
}

// View is the shape returned by GET /auth/session.
type View struct {
	User    UserView        `json:"user"`
	Profile *domain.Profile `json:"profile"`
}

type UserView struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

func (s *Session) View() View {
	return View{User: UserView{ID: s.UserID, Email: s.Email}, Profile: s.Profile}
}

// Init attaches an anonymous session to the request.
func Init(c *gin.Context) *Session {
	s := &Session{}
	c.Set(contextKey, s)
	return s
}

// Set replaces the request's session once the token and profile are resolved.
func Set(c *gin.Context, s *Session) {
	c.Set(contextKey, s)
}

// Clear drops the caller's identity, leaving an anonymous session.
func Clear(c *gin.Context) {
	c.Set(contextKey, &Session{})
}

// From returns the request's session. ok is false when none is authenticated.
func From(c *gin.Context) (*Session, bool) {
	v, exists := c.Get(contextKey)
	if !exists {
		return nil, false
	}
	s, ok := v.(*Session)
	if !ok || !s.Authenticated() {
		return nil, false
	}
	return s, true
}
