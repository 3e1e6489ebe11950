package repository

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrEntryExists          = errors.New("waiting entry already exists")
	ErrActiveConversation   = errors.New("user has an active conversation")
	ErrClaimConflict        = errors.New("candidate already claimed")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("user is not a participant")
)

// Keyspace Redis 키 이름 규칙.
// 모든 키가 같은 해시 태그({name})를 공유하므로 Lua 스크립트가 클러스터에서도 단일 슬롯에서 실행된다.
type Keyspace struct {
	prefix string
}

// NewKeyspace name을 해시 태그로 감싼 키 공간 생성
func NewKeyspace(name string) Keyspace {
	if name == "" {
		name = "anonchat"
	}
	return Keyspace{prefix: "{" + name + "}"}
}

func (k Keyspace) BucketPrefix() string       { return k.prefix + ":bucket:" }
func (k Keyspace) Bucket(tag string) string   { return k.BucketPrefix() + tag }
func (k Keyspace) EntryPrefix() string        { return k.prefix + ":entry:" }
func (k Keyspace) Entry(userID string) string { return k.EntryPrefix() + userID }
func (k Keyspace) Entries() string            { return k.prefix + ":entries" }
func (k Keyspace) ActivePrefix() string       { return k.prefix + ":active:" }
func (k Keyspace) Active(userID string) string {
	return k.ActivePrefix() + userID
}
func (k Keyspace) Conversation(id string) string { return k.prefix + ":conversation:" + id }

// 매칭 스크립트가 건드리지 않는 보조 키
func (k Keyspace) Events() string          { return k.prefix + ":events" }
func (k Keyspace) SweepLock() string       { return k.prefix + ":sweep" }
func (k Keyspace) RateLimitPrefix() string { return k.prefix + ":ratelimit:" }

// 태그는 [a-z0-9]로 정규화되어 있으므로 쉼표를 구분자로 쓸 수 있다
func joinInterests(tags []string) string {
	return strings.Join(tags, ",")
}

func splitInterests(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func parseMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
