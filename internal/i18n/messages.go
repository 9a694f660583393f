// Package i18n localizes the user-visible reason strings attached to
// generation failures. English and Indonesian are supported; unknown locales
// fall back to English via language matching.
package i18n

import (
	"golang.org/x/text/language"

	"storyboard/internal/domain"
)

var supported = []language.Tag{
	language.English,
	language.Indonesian,
}

var matcher = language.NewMatcher(supported)

var messages = map[language.Tag]map[domain.ErrorCode]string{
	language.English: {
		domain.ErrCodeConfiguration:         "The provider configuration is invalid or incomplete.",
		domain.ErrCodeAPIKey:                "The provider credential is missing or rejected.",
		domain.ErrCodeProviderNotConfigured: "No provider is configured for this operation.",
		domain.ErrCodeUnsupportedFunction:   "The assigned provider does not support this operation.",
		domain.ErrCodeTimeout:               "The provider did not answer in time.",
		domain.ErrCodeRateLimit:             "The provider is rate limiting requests, try again shortly.",
		domain.ErrCodeQuotaExceeded:         "The provider quota has been exhausted.",
		domain.ErrCodeContentPolicy:         "The provider rejected the content.",
		domain.ErrCodeProvider:              "The provider reported an error.",
	},
	language.Indonesian: {
		domain.ErrCodeConfiguration:         "Konfigurasi penyedia tidak valid atau belum lengkap.",
		domain.ErrCodeAPIKey:                "Kredensial penyedia hilang atau ditolak.",
		domain.ErrCodeProviderNotConfigured: "Belum ada penyedia yang dikonfigurasi untuk operasi ini.",
		domain.ErrCodeUnsupportedFunction:   "Penyedia yang dipilih tidak mendukung operasi ini.",
		domain.ErrCodeTimeout:               "Penyedia tidak merespons tepat waktu.",
		domain.ErrCodeRateLimit:             "Penyedia sedang membatasi permintaan, coba lagi sebentar lagi.",
		domain.ErrCodeQuotaExceeded:         "Kuota penyedia sudah habis.",
		domain.ErrCodeContentPolicy:         "Penyedia menolak konten tersebut.",
		domain.ErrCodeProvider:              "Penyedia melaporkan kesalahan.",
	},
}

// Match resolves a locale string ("id", "en-US", "id-ID,en;q=0.8") to a
// supported tag. Empty or unknown locales resolve to English.
func Match(locale string) language.Tag {
	if locale == "" {
		return language.English
	}
	tags, _, err := language.ParseAcceptLanguage(locale)
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, index, _ := matcher.Match(tags...)
	return supported[index]
}

// Reason returns the localized reason for an error code.
func Reason(locale string, code domain.ErrorCode) string {
	tag := Match(locale)
	if msg, ok := messages[tag][code]; ok {
		return msg
	}
	if msg, ok := messages[language.English][code]; ok {
		return msg
	}
	return messages[language.English][domain.ErrCodeProvider]
}

// ReasonForError picks the localized reason for an error's code, preferring
// the provider-supplied detail when present.
func ReasonForError(locale string, err error) string {
	if detail := domain.ReasonOf(err); detail != "" {
		return detail
	}
	return Reason(locale, domain.CodeOf(err))
}
