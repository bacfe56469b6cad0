package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnsupportedMessageType = errors.New("unsupported message type")
	ErrWindowTooWide          = errors.New("date range exceeds registry maximum of 31 days")
	ErrClientClosed           = errors.New("registry client is closed")
	ErrPassInFlight           = errors.New("previous scan pass is still in flight")
	ErrInvalidRange           = errors.New("invalid date range")
)

// FailureKind - причина неуспешного HTTP-обмена с реестром
type FailureKind string

const (
	FailureNetwork FailureKind = "network"
	FailureServer  FailureKind = "server"
	FailureClient  FailureKind = "client"
	FailurePayload FailureKind = "payload"
)

// AuthenticationError - реестр отклонил учетные данные
type AuthenticationError struct {
	StatusCode int
	Err        error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("registry authentication failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("registry authentication failed (status %d)", e.StatusCode)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// RateLimitError - ретраи исчерпаны под ответами 429
type RateLimitError struct {
	Attempts   int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("registry rate limit exceeded after %d attempts", e.Attempts)
}

// ApiError - любая другая невосстановимая ошибка обмена с реестром
type ApiError struct {
	Kind       FailureKind
	StatusCode int
	Endpoint   string
	Err        error
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("registry %s error on %s (status %d): %v", e.Kind, e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("registry %s error on %s (status %d)", e.Kind, e.Endpoint, e.StatusCode)
}

func (e *ApiError) Unwrap() error { return e.Err }

// DecodeError - документ не удалось разобрать
type DecodeError struct {
	MessageGUID uuid.UUID
	MessageType string
	Err         error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode message %s (%s): %v", e.MessageGUID, e.MessageType, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PersistenceError - сбой хранилища, транзакция документа откатена
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// TaskDisposition - что делать с задачей сканирования после ошибки
type TaskDisposition int

const (
	DispositionDrop TaskDisposition = iota
	DispositionRetry
)

func (d TaskDisposition) String() string {
	if d == DispositionRetry {
		return "retry"
	}
	return "drop"
}

// ClassifyTaskError решает судьбу задачи по ошибке.
// 5xx после исчерпания ретраев клиента отбрасывается: окно будет
// повторно покрыто перекрытием следующего прохода планировщика.
func ClassifyTaskError(err error) TaskDisposition {
	if err == nil {
		return DispositionDrop
	}

	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return DispositionRetry
	}

	var persistErr *PersistenceError
	if errors.As(err, &persistErr) {
		return DispositionRetry
	}

	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		if apiErr.Kind == FailureNetwork {
			return DispositionRetry
		}
		return DispositionDrop
	}

	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return DispositionRetry
	}

	return DispositionDrop
}

// ShouldRetryTask - повторять ли задачу: ошибка временная и попытки не исчерпаны.
// Attempt считается с нуля.
func ShouldRetryTask(err error, task ScanTask, maxAttempts int) bool {
	if ClassifyTaskError(err) != DispositionRetry {
		return false
	}
	return task.Attempt+1 < maxAttempts
}
