package i18n

import (
	"testing"

	"storyboard/internal/domain"
)

func TestMatchFallsBackToEnglish(t *testing.T) {
	cases := map[string]string{
		"":                  "en",
		"id":                "id",
		"id-ID":             "id",
		"en-US":             "en",
		"fr":                "en",
		"id-ID,en;q=0.8":    "id",
		"garbage;;;not-rfc": "en",
	}
	for locale, want := range cases {
		if got := Match(locale).String(); got != want {
			t.Fatalf("Match(%q) = %q, want %q", locale, got, want)
		}
	}
}

func TestReasonCoversEveryErrorCode(t *testing.T) {
	codes := []domain.ErrorCode{
		domain.ErrCodeConfiguration,
		domain.ErrCodeAPIKey,
		domain.ErrCodeProviderNotConfigured,
		domain.ErrCodeUnsupportedFunction,
		domain.ErrCodeTimeout,
		domain.ErrCodeRateLimit,
		domain.ErrCodeQuotaExceeded,
		domain.ErrCodeContentPolicy,
		domain.ErrCodeProvider,
	}
	for _, code := range codes {
		for _, locale := range []string{"en", "id"} {
			if Reason(locale, code) == "" {
				t.Fatalf("missing %s message for %s", locale, code)
			}
		}
	}
	if Reason("en", domain.ErrCodeRateLimit) == Reason("id", domain.ErrCodeRateLimit) {
		t.Fatalf("locales should produce distinct messages")
	}
}

func TestReasonForErrorPrefersProviderDetail(t *testing.T) {
	err := domain.NewError(domain.ErrCodeContentPolicy, "demo", "prompt mentions a trademark", nil)
	if got := ReasonForError("id", err); got != "prompt mentions a trademark" {
		t.Fatalf("reason = %q, want provider detail", got)
	}
	bare := domain.NewError(domain.ErrCodeTimeout, "demo", "", nil)
	if got := ReasonForError("id", bare); got == "" {
		t.Fatalf("expected localized fallback for bare errors")
	}
}
