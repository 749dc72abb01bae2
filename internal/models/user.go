package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const DefaultUserName = "(Unknown)"

// User mirrors an identity-provider subject. Name, Email, Picture and Data are
// read-only copies of the provider's profile and are refreshed on login.
type User struct {
	ID        string         `json:"id" gorm:"primaryKey;size:36"`
	Username  string         `json:"username" gorm:"size:150;uniqueIndex;not null"`
	Data      datatypes.JSON `json:"-"`
	Name      string         `json:"name" gorm:"size:100"`
	Email     string         `json:"email" gorm:"size:254;index"`
	Picture   string         `json:"picture" gorm:"size:512"`
	IsActive  bool           `json:"is_active"`
	IsAdmin   bool           `json:"is_admin"`
	LastLogin *time.Time     `json:"last_login,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	Account *Account `json:"account,omitempty" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Name == "" {
		u.Name = DefaultUserName
	}
	return nil
}

// AfterCreate gives every new user its Account inside the same transaction.
func (u *User) AfterCreate(tx *gorm.DB) error {
	if u.Account != nil && u.Account.ID != "" {
		return nil
	}
	acct := &Account{
		UserID: u.ID,
		Name:   u.Name,
		Email:  u.Email,
	}
	if acct.Name == DefaultUserName {
		acct.Name = ""
	}
	if err := tx.Create(acct).Error; err != nil {
		return err
	}
	u.Account = acct
	return nil
}

// IdentityProfile is the subset of identity-provider data cached on a User.
type IdentityProfile struct {
	Subject string                 `json:"sub"`
	Name    string                 `json:"name"`
	Email   string                 `json:"email"`
	Picture string                 `json:"picture"`
	Phone   string                 `json:"phone_number,omitempty"`
	Raw     map[string]interface{} `json:"-"`
}

// UpdateUserRequest is the admin payload for toggling user permissions.
type UpdateUserRequest struct {
	IsAdmin  *bool `json:"is_admin"`
	IsActive *bool `json:"is_active"`
}
