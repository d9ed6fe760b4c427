// Package idx generates the sortable identifiers used for every stored
// record: users, chats, messages and health entries.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a canonical ULID string. IDs generated later sort after earlier ones.
type ID string

// Zero is the empty placeholder ID.
const Zero ID = ""

// ErrInvalid reports a malformed identifier.
var ErrInvalid = errors.New("idx: invalid id")

var (
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	once    sync.Once
)

// New returns an ID stamped with the current UTC time.
func New() ID {
	return NewAt(time.Now().UTC())
}

// NewAt returns an ID stamped with t. IDs minted within the same
// millisecond are still strictly increasing.
func NewAt(t time.Time) ID {
	once.Do(func() { entropy = ulid.Monotonic(rand.Reader, 0) })

	mu.Lock()
	defer mu.Unlock()

	return ID(ulid.MustNew(ulid.Timestamp(t), entropy).String())
}

// Parse validates s and returns it as an ID.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrInvalid
	}
	if _, err := ulid.ParseStrict(s); err != nil {
		return Zero, ErrInvalid
	}
	return ID(s), nil
}

// Valid reports whether s is a well formed ID. Route handlers use it to
// answer NotFound without touching the store.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

func (id ID) IsZero() bool { return id == Zero }

func (id ID) String() string { return string(id) }

// Time returns the embedded millisecond timestamp, or the zero time for an
// invalid ID.
func (id ID) Time() time.Time {
	u, err := ulid.ParseStrict(string(id))
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time()).UTC()
}
