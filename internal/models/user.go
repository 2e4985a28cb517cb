package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User is a management-plane account. Gateway traffic itself is
// authenticated by bearer tokens, not by these records.
type User struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	UUID         string `json:"uuid" gorm:"uniqueIndex"`
	Email        string `json:"email" gorm:"uniqueIndex"`
	Name         string `json:"name"`
	PasswordHash string `json:"-"`
	Role         string `json:"role" gorm:"default:'user'"` // "admin", "user"

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetPassword hashes and sets the user's password.
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword compares the provided password with the stored hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}
