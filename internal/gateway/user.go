package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/jinshu-im/jinshu/pkg/protocol"
	"github.com/jinshu-im/jinshu/pkg/secret"
)

// User is an account row. The identifier is the 32-char hex form of the
// user's UID; the password is stored only as a bcrypt hash.
type User struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"uniqueIndex;not null" json:"name"`
	PasswordHash []byte    `gorm:"not null" json:"-"`
	Extension    *string   `json:"extension,omitempty"`
	CreateTime   time.Time `gorm:"autoCreateTime" json:"create_time"`
}

var (
	// ErrUserNotFound reports an unknown user id.
	ErrUserNotFound = errors.New("user not found")

	// ErrNameTaken reports a sign-up with an already registered name.
	ErrNameTaken = errors.New("user name already taken")

	// ErrWrongPassword reports a failed password check.
	ErrWrongPassword = errors.New("wrong password")
)

// UserStore persists accounts.
type UserStore struct {
	db *gorm.DB
}

// NewUserStore builds the store over an opened database.
func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// Models returns the gorm models this store migrates.
func Models() []any {
	return []any{&User{}}
}

// Create registers a new account with a bcrypt-hashed password and returns
// its generated identifier.
func (s *UserStore) Create(ctx context.Context, name string, password secret.Secret, extension *string) (protocol.UID, error) {
	hash, err := bcrypt.GenerateFromPassword(password.ExposeBytes(), bcrypt.DefaultCost)
	if err != nil {
		return protocol.Nil, fmt.Errorf("hash password: %w", err)
	}

	id := protocol.NewUID()
	user := &User{
		ID:           id.String(),
		Name:         name,
		PasswordHash: hash,
		Extension:    extension,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return protocol.Nil, ErrNameTaken
		}
		return protocol.Nil, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// Get loads an account by id.
func (s *UserStore) Get(ctx context.Context, userID protocol.UID) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).First(&user, "id = ?", userID.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}

// Authenticate loads the account and checks the password against its hash.
func (s *UserStore) Authenticate(ctx context.Context, userID protocol.UID, password secret.Secret) (*User, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, password.ExposeBytes()); err != nil {
		return nil, ErrWrongPassword
	}
	return user, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
