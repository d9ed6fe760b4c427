package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrTxDone        = errors.New("store: nested transactions are not supported")
)

// Store is the root data access interface. Drivers (sqlite, postgres,
// bolt) implement it and expose sub-repositories so a transaction cannot
// be opened from inside another one.
type Store interface {
	Users() Users
	Chats() Chats
	Health() Health

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the backing database is reachable.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserForUpdate reads id and holds its row until the enclosing
	// transaction ends. Read-modify-write of a user goes through it.
	GetUserForUpdate(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail expects an already normalised address.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// GetUserByExternalID looks a user up by identity provider subject.
	GetUserByExternalID(ctx context.Context, providerID string) (domain.User, error)

	// ListUsers returns one page ordered by creation (newest first) and the
	// total number of users.
	ListUsers(ctx context.Context, limit, offset int) ([]domain.User, int, error)

	// CreateUser inserts u. Duplicate emails or provider ids give
	// ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateUser writes the email, username and profile details of u and
	// bumps updated_at.
	UpdateUser(ctx context.Context, u domain.User) error

	SetRole(ctx context.Context, id string, role domain.Role) error
	SetActive(ctx context.Context, id string, active bool) error

	// ModifyLockout applies fn to the stored lockout state atomically and
	// returns the result.
	ModifyLockout(ctx context.Context, id string, fn func(domain.Lockout) domain.Lockout) (domain.Lockout, error)

	// RecordLogin clears the lockout state and stamps last_login.
	RecordLogin(ctx context.Context, id string, at time.Time) error

	// BumpTokenVersion increments and returns the user's token version.
	BumpTokenVersion(ctx context.Context, id string) (int64, error)

	// HasAdmin reports whether any admin account exists.
	HasAdmin(ctx context.Context) (bool, error)
}

type Chats interface {
	// CreateChat inserts a chat along with its initial messages.
	CreateChat(ctx context.Context, c domain.Chat) error

	// GetChat returns the chat only when it belongs to userID.
	GetChat(ctx context.Context, userID, chatID string) (domain.Chat, error)

	// ListChats returns the user's chats, most recently updated first.
	ListChats(ctx context.Context, userID string) ([]domain.ChatSummary, error)

	// AppendMessages adds msgs to the end of the transcript and moves the
	// chat's updated and expiry stamps.
	AppendMessages(ctx context.Context, userID, chatID string, msgs []domain.Message, updatedAt, expiresAt time.Time) error

	DeleteChat(ctx context.Context, userID, chatID string) error

	// DeleteExpiredChats removes chats whose expiry is at or before now.
	DeleteExpiredChats(ctx context.Context, now time.Time) (int64, error)
}

type Health interface {
	AddEntry(ctx context.Context, e domain.Entry) error
	GetEntry(ctx context.Context, userID string, kind domain.Kind, id string) (domain.Entry, error)

	// ListEntries returns entries of a kind, oldest first.
	ListEntries(ctx context.Context, userID string, kind domain.Kind) ([]domain.Entry, error)

	// UpdateEntry replaces the data of an existing entry.
	UpdateEntry(ctx context.Context, e domain.Entry) error
	DeleteEntry(ctx context.Context, userID string, kind domain.Kind, id string) error
}
