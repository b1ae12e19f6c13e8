// Package identity calls the privileged user-management functions. Only
// those functions hold the credentials needed to create, reset or delete
// accounts, so the API server forwards the caller's bearer token to them.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/config"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
)

const (
	OpCreateUser    = "create-user"
	OpResetPassword = "reset-password"
	OpDeleteUser    = "delete-user"
)

// ErrUnavailable means the functions could not be reached or the circuit is open.
var ErrUnavailable = errors.New("user management service unavailable")

// RemoteError carries a failure reported by a function. Message is shown to
// the user verbatim.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

type CreateUserRequest struct {
	FirstName       string          `json:"firstName"`
	LastName        string          `json:"lastName"`
	Email           string          `json:"email"`
	Password        string          `json:"password"`
	Role            domain.Role     `json:"role"`
	AssignedSection *domain.Section `json:"assignedSection,omitempty"`
	Centre          *string         `json:"centre,omitempty"`
}

type CreateUserResponse struct {
	UserID uuid.UUID `json:"userId"`
}

type ResetPasswordRequest struct {
	UserID      uuid.UUID `json:"userId"`
	NewPassword string    `json:"newPassword"`
}

type DeleteUserRequest struct {
	UserID uuid.UUID `json:"userId"`
}

// Observer is told the outcome of every call: ok, remote_error, timeout or unavailable.
type Observer func(operation, outcome string)

type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	breaker    *gobreaker.CircuitBreaker[[]byte]
	observe    Observer
	logger     *zap.Logger
}

func NewClient(cfg config.FunctionsConfig, callTimeout time.Duration, observe Observer, logger *zap.Logger) *Client {
	if observe == nil {
		observe = func(string, string) {}
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "identity-functions",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// A function rejecting the request is a healthy answer.
		IsSuccessful: func(err error) bool {
			var re *RemoteError
			return err == nil || errors.As(err, &re)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		timeout:    callTimeout,
		breaker:    breaker,
		observe:    observe,
		logger:     logger,
	}
}

// CreateUser creates the account and its profile and returns the new user ID.
func (c *Client) CreateUser(ctx context.Context, token string, req CreateUserRequest) (uuid.UUID, error) {
	var resp CreateUserResponse
	if err := c.call(ctx, OpCreateUser, token, req, &resp); err != nil {
		return uuid.Nil, err
	}
	return resp.UserID, nil
}

func (c *Client) ResetPassword(ctx context.Context, token string, userID uuid.UUID, password string) error {
	return c.call(ctx, OpResetPassword, token, ResetPasswordRequest{UserID: userID, NewPassword: password}, nil)
}

// DeleteUser removes the account and its profile.
func (c *Client) DeleteUser(ctx context.Context, token string, userID uuid.UUID) error {
	return c.call(ctx, OpDeleteUser, token, DeleteUserRequest{UserID: userID}, nil)
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func (c *Client) call(ctx context.Context, op, token string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("identity.%s: marshal: %w", op, err)
	}

	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return c.post(ctx, op, token, body)
	})
	if err != nil {
		return c.classify(ctx, op, err)
	}
	c.observe(op, "ok")

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("identity.%s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, op, token string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+op, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var env envelope
	_ = json.Unmarshal(payload, &env)

	if resp.StatusCode >= http.StatusInternalServerError && env.Error == "" {
		return nil, fmt.Errorf("functions returned status %d", resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &RemoteError{Status: resp.StatusCode, Message: msg}
	}
	return env.Data, nil
}

func (c *Client) classify(ctx context.Context, op string, err error) error {
	var (
		re *RemoteError
		ne net.Error
	)
	switch {
	case errors.As(err, &re):
		c.observe(op, "remote_error")
		return re
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.As(err, &ne) && ne.Timeout():
		c.observe(op, "timeout")
		c.logger.Warn("identity call timed out", zap.String("operation", op), zap.Duration("timeout", c.timeout))
		return fmt.Errorf("identity.%s: %w", op, domain.ErrTimeout)
	default:
		c.observe(op, "unavailable")
		c.logger.Error("identity call failed", zap.String("operation", op), zap.Error(err))
		return fmt.Errorf("identity.%s: %w: %v", op, ErrUnavailable, err)
	}
}
