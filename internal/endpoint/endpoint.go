package endpoint

import (
	"errors"
	"fmt"
	"strings"

	"github.com/oukeidos/subflow/internal/apperrors"
)

// Format selects the request/response dialect of an endpoint.
type Format string

const (
	FormatOpenAI    Format = "openai"
	FormatAnthropic Format = "anthropic"
	FormatAuto      Format = "auto"
)

const (
	openAISuffix    = "/chat/completions"
	anthropicSuffix = "/messages"
	modelsSuffix    = "/models"
)

// ErrEmptyEndpoint is returned when the configured URL is blank.
var ErrEmptyEndpoint = errors.New("endpoint URL is empty")

// ParseFormat accepts "openai", "anthropic" or "auto" in any case. Empty means auto.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(FormatAuto):
		return FormatAuto, nil
	case string(FormatOpenAI):
		return FormatOpenAI, nil
	case string(FormatAnthropic):
		return FormatAnthropic, nil
	default:
		return "", fmt.Errorf("unknown api format %q (expected openai, anthropic or auto)", s)
	}
}

// Detect resolves Auto by inspecting the URL; explicit formats pass through.
func Detect(url string, configured Format) Format {
	if configured != FormatAuto && configured != "" {
		return configured
	}
	lower := strings.ToLower(url)
	if strings.Contains(lower, "anthropic") ||
		strings.HasSuffix(lower, anthropicSuffix) ||
		strings.Contains(lower, "/v1/messages") {
		return FormatAnthropic
	}
	return FormatOpenAI
}

// Normalize trims the URL and binds it to the dialect's resource suffix.
// A blank URL normalizes to "".
func Normalize(url string, format Format) string {
	trimmed := strings.TrimRight(strings.TrimSpace(url), "/")
	if trimmed == "" {
		return ""
	}
	suffix := openAISuffix
	if format == FormatAnthropic {
		suffix = anthropicSuffix
	}
	if strings.HasSuffix(trimmed, suffix) {
		return trimmed
	}
	return trimmed + suffix
}

// Target is a normalized request URL bound to exactly one dialect.
type Target struct {
	URL    string
	Format Format
}

// Resolve detects the dialect and normalizes the URL. A blank URL is a
// configuration error.
func Resolve(url string, configured Format) (Target, error) {
	format := Detect(strings.TrimSpace(url), configured)
	normalized := Normalize(url, format)
	if normalized == "" {
		return Target{}, apperrors.New(apperrors.KindConfig, "LLM endpoint is not configured.", ErrEmptyEndpoint)
	}
	return Target{URL: normalized, Format: format}, nil
}

// ModelsURL derives the sibling model listing URL from a request URL.
func ModelsURL(url string) string {
	base := strings.TrimRight(strings.TrimSpace(url), "/")
	base = strings.TrimSuffix(base, openAISuffix)
	base = strings.TrimSuffix(base, anthropicSuffix)
	base = strings.TrimRight(base, "/")
	return base + modelsSuffix
}
