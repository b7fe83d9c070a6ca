package translator

import (
	"fmt"
	"strings"
)

// TagPolicy decides what happens to a translated entry whose override tags
// do not match the original.
type TagPolicy string

const (
	// TagPolicyDefault rejects the whole batch in request/response mode and
	// drops the entry in streaming mode.
	TagPolicyDefault TagPolicy = "default"
	// TagPolicyStrict rejects the whole batch in both modes.
	TagPolicyStrict TagPolicy = "strict"
	// TagPolicyDrop drops offending entries in both modes.
	TagPolicyDrop TagPolicy = "drop"
)

// ParseTagPolicy accepts the policy names in any case. Empty means default.
func ParseTagPolicy(s string) (TagPolicy, error) {
	switch p := TagPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return TagPolicyDefault, nil
	case TagPolicyDefault, TagPolicyStrict, TagPolicyDrop:
		return p, nil
	default:
		return "", fmt.Errorf("unknown tag policy %q (expected default, strict or drop)", s)
	}
}

func (p TagPolicy) strict(streaming bool) bool {
	switch p {
	case TagPolicyStrict:
		return true
	case TagPolicyDrop:
		return false
	default:
		return !streaming
	}
}

// Settings controls one orchestration call.
type Settings struct {
	BatchSize        int
	ParallelRequests int
	MaxRetries       int
	AutoContinue     bool
	ContinueOnError  bool
	Streaming        bool
	TagPolicy        TagPolicy
}

func DefaultSettings() Settings {
	return Settings{
		BatchSize:        50,
		ParallelRequests: 1,
		MaxRetries:       3,
		AutoContinue:     true,
		ContinueOnError:  false,
		Streaming:        false,
		TagPolicy:        TagPolicyDefault,
	}
}

// Normalize clamps out-of-range values: batch size and parallelism to at
// least 1, retries to at least 0.
func (s Settings) Normalize() Settings {
	if s.BatchSize < 1 {
		s.BatchSize = 1
	}
	if s.ParallelRequests < 1 {
		s.ParallelRequests = 1
	}
	if s.MaxRetries < 0 {
		s.MaxRetries = 0
	}
	if s.TagPolicy == "" {
		s.TagPolicy = TagPolicyDefault
	}
	return s
}
