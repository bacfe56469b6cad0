package efrsbclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"fedresurs-radar/internal/constants"
	"fedresurs-radar/internal/contextkeys"
	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"
)

// authState - состояние аутентификации клиента
type authState int

const (
	stateUnauthenticated authState = iota
	stateAuthenticated
	stateExpired
)

func (s authState) String() string {
	switch s {
	case stateAuthenticated:
		return "authenticated"
	case stateExpired:
		return "expired"
	default:
		return "unauthenticated"
	}
}

// tokenState хранит текущий токен. Переходы:
// Unauthenticated -> Authenticated (успешный вход),
// Authenticated -> Expired (401 или истек локальный срок),
// Expired -> Authenticated (повторный вход).
type tokenState struct {
	mu        sync.RWMutex
	state     authState
	token     string
	expiresAt time.Time
}

// current возвращает действующий токен или false
func (t *tokenState) current(now time.Time) (string, bool) {
	t.mu.RLock()
	state, token, expiresAt := t.state, t.token, t.expiresAt
	t.mu.RUnlock()

	if state != stateAuthenticated {
		return "", false
	}
	if !now.Before(expiresAt) {
		t.invalidate(token)
		return "", false
	}
	return token, true
}

func (t *tokenState) set(token string, expiresAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = stateAuthenticated
	t.token = token
	t.expiresAt = expiresAt
}

// invalidate переводит в Expired, только если токен не успели обновить
func (t *tokenState) invalidate(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == stateAuthenticated && t.token == token {
		t.state = stateExpired
	}
}

func (t *tokenState) snapshot() authState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Authenticate выполняет вход принудительно
func (a *EfrsbClientAdapter) Authenticate(ctx context.Context) error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()
	_, err := a.login(ctx)
	return err
}

// bearer возвращает действующий токен, при необходимости входя заново
func (a *EfrsbClientAdapter) bearer(ctx context.Context) (string, error) {
	if token, ok := a.auth.current(a.now()); ok {
		return token, nil
	}
	return a.refresh(ctx, "")
}

// refresh получает новый токен. Если пока вызывающий ждал блокировку
// другой запрос уже обновил токен (он отличается от stale), вход не повторяется.
func (a *EfrsbClientAdapter) refresh(ctx context.Context, stale string) (string, error) {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	if token, ok := a.auth.current(a.now()); ok && token != stale {
		return token, nil
	}
	return a.login(ctx)
}

// login вызывается под refreshMu
func (a *EfrsbClientAdapter) login(ctx context.Context) (string, error) {
	logger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{"component": "EfrsbClient(Auth)"})

	payload, err := json.Marshal(authRequest{Login: a.cfg.Login, Password: a.cfg.Password})
	if err != nil {
		return "", fmt.Errorf("efrsb client: failed to encode credentials: %w", err)
	}

	issuedAt := a.now()
	body, err := a.execute(ctx, apiRequest{
		method:   http.MethodPost,
		endpoint: constants.AuthPath,
		body:     payload,
	})
	if err != nil {
		var authErr *domain.AuthenticationError
		if errors.As(err, &authErr) {
			logger.Error("Registry rejected credentials", err, nil)
			return "", err
		}
		logger.Error("Authentication request failed", err, nil)
		status := 0
		var apiErr *domain.ApiError
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return "", &domain.AuthenticationError{StatusCode: status, Err: err}
	}

	var resp authResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &domain.AuthenticationError{StatusCode: http.StatusOK, Err: fmt.Errorf("malformed auth response: %w", err)}
	}
	if resp.JWT == "" {
		return "", &domain.AuthenticationError{StatusCode: http.StatusOK, Err: errors.New("auth response carries no token")}
	}

	expiresAt := issuedAt.Add(a.cfg.TokenTTL)
	a.auth.set(resp.JWT, expiresAt)
	logger.Info("Authenticated against registry", port.Fields{"expires_at": expiresAt})
	return resp.JWT, nil
}
