package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode classifies a generation failure for retry decisions and for
// localized user-facing messages.
type ErrorCode string

const (
	ErrCodeConfiguration         ErrorCode = "configuration"
	ErrCodeAPIKey                ErrorCode = "api_key"
	ErrCodeProviderNotConfigured ErrorCode = "provider_not_configured"
	ErrCodeUnsupportedFunction   ErrorCode = "unsupported_function"
	ErrCodeTimeout               ErrorCode = "timeout"
	ErrCodeRateLimit             ErrorCode = "rate_limit"
	ErrCodeQuotaExceeded         ErrorCode = "quota_exceeded"
	ErrCodeContentPolicy         ErrorCode = "content_policy"
	ErrCodeProvider              ErrorCode = "provider"
)

// Sentinels for errors.Is matching against GenerationError codes.
var (
	ErrConfiguration         = errors.New("invalid configuration")
	ErrAPIKey                = errors.New("missing or malformed api key")
	ErrProviderNotConfigured = errors.New("provider not configured")
	ErrUnsupportedFunction   = errors.New("unsupported function")
	ErrTimeout               = errors.New("request timed out")
	ErrRateLimit             = errors.New("rate limited")
	ErrQuotaExceeded         = errors.New("quota exceeded")
	ErrContentPolicy         = errors.New("content policy violation")
	ErrProvider              = errors.New("provider failure")
)

var sentinelByCode = map[ErrorCode]error{
	ErrCodeConfiguration:         ErrConfiguration,
	ErrCodeAPIKey:                ErrAPIKey,
	ErrCodeProviderNotConfigured: ErrProviderNotConfigured,
	ErrCodeUnsupportedFunction:   ErrUnsupportedFunction,
	ErrCodeTimeout:               ErrTimeout,
	ErrCodeRateLimit:             ErrRateLimit,
	ErrCodeQuotaExceeded:         ErrQuotaExceeded,
	ErrCodeContentPolicy:         ErrContentPolicy,
	ErrCodeProvider:              ErrProvider,
}

// GenerationError is the typed failure surfaced by adapters and the façade.
// Reason is human-readable and keyed for localization via the code.
type GenerationError struct {
	Code     ErrorCode
	Provider string
	Reason   string
	Err      error
}

func (e *GenerationError) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	if e.Reason != "" {
		b.WriteString(e.Reason)
	} else if sentinel, ok := sentinelByCode[e.Code]; ok {
		b.WriteString(sentinel.Error())
	} else {
		b.WriteString("generation failed")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, domain.ErrRateLimit) style checks match on the code.
func (e *GenerationError) Is(target error) bool {
	sentinel, ok := sentinelByCode[e.Code]
	return ok && target == sentinel
}

// NewError constructs a GenerationError for the given classification.
func NewError(code ErrorCode, provider, reason string, err error) *GenerationError {
	return &GenerationError{Code: code, Provider: provider, Reason: reason, Err: err}
}

// CodeOf extracts the error code, defaulting to the generic provider class
// for untyped errors.
func CodeOf(err error) ErrorCode {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Code
	}
	return ErrCodeProvider
}

// ReasonOf extracts the human-readable reason string.
func ReasonOf(err error) string {
	var genErr *GenerationError
	if errors.As(err, &genErr) && genErr.Reason != "" {
		return genErr.Reason
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// Retryable reports whether retrying the operation could change the outcome.
// Configuration-shape errors are programmer or user mistakes; content-policy
// and quota rejections will repeat identically.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeConfiguration, ErrCodeAPIKey, ErrCodeProviderNotConfigured,
		ErrCodeUnsupportedFunction, ErrCodeContentPolicy, ErrCodeQuotaExceeded:
		return false
	default:
		return true
	}
}

// ClassifyStatus maps an HTTP response status and body onto the taxonomy.
func ClassifyStatus(provider string, status int, body string) *GenerationError {
	trimmed := strings.TrimSpace(body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewError(ErrCodeAPIKey, provider, fmt.Sprintf("authentication rejected (status %d)", status), nil)
	case status == http.StatusTooManyRequests:
		return NewError(ErrCodeRateLimit, provider, "rate limit exceeded", nil)
	case status == http.StatusPaymentRequired:
		return NewError(ErrCodeQuotaExceeded, provider, "quota exhausted", nil)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return NewError(ErrCodeTimeout, provider, fmt.Sprintf("provider timeout (status %d)", status), nil)
	case status == http.StatusBadRequest && looksLikePolicyRejection(trimmed):
		return NewError(ErrCodeContentPolicy, provider, policyReason(trimmed), nil)
	default:
		reason := fmt.Sprintf("status %d", status)
		if trimmed != "" {
			reason = fmt.Sprintf("status %d: %s", status, truncate(trimmed, 200))
		}
		return NewError(ErrCodeProvider, provider, reason, nil)
	}
}

func looksLikePolicyRejection(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range []string{"content policy", "content_policy", "safety", "sensitive", "moderation"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func policyReason(body string) string {
	if body == "" {
		return "content rejected by provider policy"
	}
	return "content rejected by provider policy: " + truncate(body, 200)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
