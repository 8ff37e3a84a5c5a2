package model

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User is a back-office operator account. Sessions are cookie based; the
// export endpoints require a logged-in user.
type User struct {
	gorm.Model
	Email          string `gorm:"uniqueIndex"`
	FullName       string
	HashedPassword string
}

// SetPassword hashes and stores the clear text password.
func (u *User) SetPassword(clear string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(clear), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.HashedPassword = string(hash)
	return nil
}

// CheckPassword compares the clear text password against the stored hash.
func (u *User) CheckPassword(clear string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(clear)) == nil
}

// ErrBadCredentials is returned for unknown users and wrong passwords
// alike, so callers cannot tell the two apart.
var ErrBadCredentials = errors.New("bad credentials")

// Authenticate looks up the user by email and verifies the password.
func (s *Store) Authenticate(email, password string) (*User, error) {
	var u User
	err := s.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !u.CheckPassword(password) {
		return nil, ErrBadCredentials
	}
	return &u, nil
}

// GetUserByID loads a user by primary key.
func (s *Store) GetUserByID(id any) (*User, error) {
	var u User
	if err := s.db.First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser stores a new operator account.
func (s *Store) CreateUser(u *User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Email == "" {
		return errors.New("create user: empty email")
	}
	return s.db.Create(u).Error
}
