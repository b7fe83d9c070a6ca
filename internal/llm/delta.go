package llm

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/oukeidos/subflow/internal/apperrors"
)

// DeltaText extracts the text fragment carried by one stream frame. It reads
// OpenAI choices[].delta.content and Anthropic content_block_delta frames.
// Frames without text, including unparsable ones, report false.
func DeltaText(data []byte) (string, bool) {
	var frame streamFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return "", false
	}
	if frame.Type == "content_block_delta" && frame.Delta != nil {
		if frame.Delta.Type != "" && frame.Delta.Type != "text_delta" {
			return "", false
		}
		return frame.Delta.Text, frame.Delta.Text != ""
	}
	var b strings.Builder
	for _, choice := range frame.Choices {
		if choice.Delta.Content != nil {
			b.WriteString(*choice.Delta.Content)
		}
	}
	return b.String(), b.Len() > 0
}

// FrameError returns the error reported in-band by a stream frame, or nil.
func FrameError(data []byte) error {
	var frame streamFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil
	}
	if frame.Error == nil && frame.Type != "error" {
		return nil
	}
	msg := "stream error"
	kind := apperrors.KindTransient
	if frame.Error != nil {
		if frame.Error.Message != "" {
			msg = frame.Error.Message
		}
		switch frame.Error.Type {
		case "rate_limit_error":
			kind = apperrors.KindRateLimit
		case "authentication_error", "permission_error":
			kind = apperrors.KindAuth
		case "invalid_request_error":
			kind = apperrors.KindBadRequest
		}
	}
	return apperrors.New(kind, "Translation stream error: "+msg, errors.New(msg))
}
