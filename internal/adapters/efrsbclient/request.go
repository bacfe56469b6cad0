package efrsbclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"fedresurs-radar/internal/contextkeys"
	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"

	"github.com/gocolly/colly/v2"
)

// outcomeKind - исход одного HTTP-обмена
type outcomeKind int

const (
	outcomeOK outcomeKind = iota
	outcomeNeedsReauth
	outcomeRateLimited
	outcomeFailed
)

// outcome - размеченный результат запроса, по которому переключается цикл повторов
type outcome struct {
	kind    outcomeKind
	status  int
	body    []byte
	wait    time.Duration      // outcomeRateLimited: Retry-After, если сервер его прислал
	failure domain.FailureKind // outcomeFailed
	err     error
}

type apiRequest struct {
	method        string
	endpoint      string
	query         url.Values
	body          []byte
	authenticated bool
}

func (r apiRequest) url(base string) string {
	u := base + r.endpoint
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	return u
}

// classify сводит ответ к размеченному исходу
func classify(status int, headers http.Header, body []byte) outcome {
	switch {
	case status >= 200 && status < 300:
		return outcome{kind: outcomeOK, status: status, body: body}
	case status == http.StatusUnauthorized:
		return outcome{kind: outcomeNeedsReauth, status: status}
	case status == http.StatusTooManyRequests:
		return outcome{kind: outcomeRateLimited, status: status, wait: retryAfter(headers)}
	case status >= 500:
		return outcome{kind: outcomeFailed, status: status, failure: domain.FailureServer, body: body}
	default:
		return outcome{kind: outcomeFailed, status: status, failure: domain.FailureClient, body: body}
	}
}

// retryAfter понимает оба формата заголовка: секунды и HTTP-дату
func retryAfter(headers http.Header) time.Duration {
	v := headers.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// roundTrip выполняет один запрос через одноразовый клон коллектора.
// Запрос не прерывается отменой ctx: начатый обмен доводится до конца.
func (a *EfrsbClientAdapter) roundTrip(ctx context.Context, r apiRequest, token string) outcome {
	collector := a.collector.Clone()
	collector.Context = context.WithoutCancel(ctx)

	var resp *colly.Response
	collector.OnResponse(func(res *colly.Response) {
		resp = res
	})

	hdr := http.Header{}
	hdr.Set("Accept", "application/json")
	if token != "" {
		hdr.Set("Authorization", "Bearer "+token)
	}
	if traceID := contextkeys.TraceIDFromContext(ctx); traceID != "" {
		hdr.Set("X-Trace-ID", traceID)
	}

	var reqBody io.Reader
	if r.body != nil {
		hdr.Set("Content-Type", "application/json")
		reqBody = bytes.NewReader(r.body)
	}

	err := collector.Request(r.method, r.url(a.cfg.BaseURL), reqBody, nil, hdr)
	if err != nil || resp == nil {
		if err == nil {
			err = errors.New("no response received")
		}
		return outcome{kind: outcomeFailed, failure: domain.FailureNetwork, err: err}
	}

	var respHeaders http.Header
	if resp.Headers != nil {
		respHeaders = *resp.Headers
	}
	return classify(resp.StatusCode, respHeaders, resp.Body)
}

// execute - цикл повторов поверх roundTrip.
// 429 и 5xx: пауза attempt*BackoffFactor (для 429 не меньше Retry-After).
// Сетевые ошибки: пауза NetworkBackoffBase*2^(attempt-1).
// 401: один повторный вход и повтор запроса без расхода попытки.
func (a *EfrsbClientAdapter) execute(ctx context.Context, r apiRequest) ([]byte, error) {
	logger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"component": "EfrsbClient",
		"endpoint":  r.endpoint,
	})

	attempt := 0
	reauthenticated := false

	for {
		if err := a.checkOpen(); err != nil {
			return nil, err
		}

		token := ""
		if r.authenticated {
			var err error
			if token, err = a.bearer(ctx); err != nil {
				return nil, err
			}
		}

		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("efrsb client: rate limiter wait: %w", err)
		}

		out := a.roundTrip(ctx, r, token)

		var wait time.Duration
		switch out.kind {
		case outcomeOK:
			return out.body, nil

		case outcomeNeedsReauth:
			if !r.authenticated {
				return nil, &domain.AuthenticationError{StatusCode: out.status}
			}
			if reauthenticated {
				return nil, &domain.AuthenticationError{
					StatusCode: out.status,
					Err:        errors.New("request rejected again after re-authentication"),
				}
			}
			reauthenticated = true
			logger.Info("Token rejected, re-authenticating", nil)
			a.auth.invalidate(token)
			if _, err := a.refresh(ctx, token); err != nil {
				return nil, err
			}
			continue

		case outcomeRateLimited:
			if attempt >= a.cfg.MaxRetries {
				return nil, &domain.RateLimitError{Attempts: attempt + 1, RetryAfter: out.wait}
			}
			attempt++
			wait = max(time.Duration(attempt)*a.cfg.BackoffFactor, out.wait)

		case outcomeFailed:
			switch out.failure {
			case domain.FailureServer:
				if attempt >= a.cfg.MaxRetries {
					return nil, a.apiError(r, out)
				}
				attempt++
				wait = time.Duration(attempt) * a.cfg.BackoffFactor
			case domain.FailureNetwork:
				if ctx.Err() != nil {
					return nil, fmt.Errorf("efrsb client: %w", ctx.Err())
				}
				if attempt >= a.cfg.MaxRetries {
					return nil, a.apiError(r, out)
				}
				attempt++
				wait = a.cfg.NetworkBackoffBase << (attempt - 1)
			default:
				return nil, a.apiError(r, out)
			}
		}

		logger.Warn("Retrying registry request", port.Fields{
			"attempt": attempt,
			"status":  out.status,
			"wait":    wait.String(),
		})
		if err := a.sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("efrsb client: backoff interrupted: %w", err)
		}
	}
}

func (a *EfrsbClientAdapter) apiError(r apiRequest, out outcome) error {
	err := out.err
	if err == nil && len(out.body) > 0 {
		snippet := out.body
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		err = errors.New(string(snippet))
	}
	return &domain.ApiError{
		Kind:       out.failure,
		StatusCode: out.status,
		Endpoint:   r.endpoint,
		Err:        err,
	}
}
