package service

import "strings"

// InterestPolicy 관심사 태그 정규화 규칙
type InterestPolicy struct {
	MaxTags   int
	MaxLength int
}

// DefaultInterestPolicy 태그 최대 5개, 태그당 20자
func DefaultInterestPolicy() InterestPolicy {
	return InterestPolicy{MaxTags: 5, MaxLength: 20}
}

// Normalize 소문자화 후 [a-z0-9] 이외 문자를 제거하고, 빈 태그와 너무 긴 태그를 버린 뒤
// 처음 등장한 순서를 유지하며 중복을 없앤다. 남는 태그가 없으면 ErrInvalidInterests.
func (p InterestPolicy) Normalize(interests []string) ([]string, error) {
	tags := make([]string, 0, len(interests))
	seen := make(map[string]struct{}, len(interests))

	for _, raw := range interests {
		tag := normalizeTag(raw)
		if tag == "" || len(tag) > p.MaxLength {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
		if len(tags) == p.MaxTags {
			break
		}
	}

	if len(tags) == 0 {
		return nil, ErrInvalidInterests
	}
	return tags, nil
}

func normalizeTag(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// firstSharedInterest ours 순서상 theirs에도 있는 첫 태그
func firstSharedInterest(ours, theirs []string) string {
	for _, tag := range ours {
		for _, other := range theirs {
			if tag == other {
				return tag
			}
		}
	}
	return ""
}
