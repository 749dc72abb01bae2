package models

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"gorm.io/gorm"
)

const (
	MaxFreeTextLength  = 2000
	DefaultPhoneRegion = "US"
)

// Zone is the school-board district zone an account lives in.
type Zone int

const (
	Zone1 Zone = iota + 1
	Zone2
	Zone3
	Zone4
	Zone5
	ZoneOutside
)

func (z Zone) Valid() bool {
	return z >= Zone1 && z <= ZoneOutside
}

func (z Zone) String() string {
	switch z {
	case Zone1:
		return "Zone 1"
	case Zone2:
		return "Zone 2"
	case Zone3:
		return "Zone 3"
	case Zone4:
		return "Zone 4"
	case Zone5:
		return "Zone 5"
	case ZoneOutside:
		return "Outside District"
	}
	return ""
}

type Role string

const (
	RoleParent    Role = "parent"
	RoleTeacher   Role = "teacher"
	RoleStudent   Role = "student"
	RoleStaff     Role = "staff"
	RoleCommunity Role = "community"
	RoleOther     Role = "other"
)

var Roles = []Role{RoleParent, RoleTeacher, RoleStudent, RoleStaff, RoleCommunity, RoleOther}

func (r Role) Valid() bool {
	for _, v := range Roles {
		if r == v {
			return true
		}
	}
	return false
}

// Account holds the advocacy-specific attributes of a User.
type Account struct {
	ID             string    `json:"id" gorm:"primaryKey;size:36"`
	UserID         string    `json:"user_id" gorm:"size:36;uniqueIndex"`
	Name           string    `json:"name" gorm:"size:100;not null"`
	Email          string    `json:"email" gorm:"size:254;index"`
	Phone          string    `json:"phone" gorm:"size:20"`
	Zone           *Zone     `json:"zone"`
	Role           Role      `json:"role" gorm:"size:20"`
	IsPublic       bool      `json:"is_public" gorm:"index"`
	IsVoter        bool      `json:"is_voter"`
	IsModerated    bool      `json:"is_moderated"`
	IsEmailInvalid bool      `json:"is_email_invalid"`
	Strikes        int       `json:"strikes"`
	Comments       string    `json:"comments" gorm:"size:2000"`
	Notes          string    `json:"notes" gorm:"size:2000"`
	CreatedAt      time.Time `json:"created_at" gorm:"index"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// FirstLastName splits the account name for mailing-list merge fields.
func (a *Account) FirstLastName() (string, string) {
	parts := strings.Fields(a.Name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// PublicAccount is what anonymous visitors see of a public account.
type PublicAccount struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Zone      string    `json:"zone,omitempty"`
	Comments  string    `json:"comments,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *Account) Public() PublicAccount {
	pub := PublicAccount{
		ID:        a.ID,
		Name:      a.Name,
		Comments:  a.Comments,
		CreatedAt: a.CreatedAt,
	}
	if a.Zone != nil {
		pub.Zone = a.Zone.String()
	}
	return pub
}

// UpdateAccountRequest is the self-service account form.
type UpdateAccountRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Zone     *int   `json:"zone"`
	Role     string `json:"role"`
	IsPublic bool   `json:"is_public"`
	Comments string `json:"comments"`
	Notes    string `json:"notes"`
}

// Normalize trims the free-text fields and rewrites the phone number to E.164
// when it parses. It is safe to call before Validate.
func (r *UpdateAccountRequest) Normalize() {
	r.Name = strings.Join(strings.Fields(r.Name), " ")
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
	r.Comments = strings.TrimSpace(r.Comments)
	r.Notes = strings.TrimSpace(r.Notes)
	if r.Phone != "" {
		if num, err := phonenumbers.Parse(r.Phone, DefaultPhoneRegion); err == nil && phonenumbers.IsValidNumber(num) {
			r.Phone = phonenumbers.Format(num, phonenumbers.E164)
		}
	}
}

func (r *UpdateAccountRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Name == "" {
		errors["name"] = "Name is required"
	} else if len(r.Name) > 100 {
		errors["name"] = "Name is too long"
	}
	if r.IsPublic && len(strings.Fields(r.Name)) < 2 {
		errors["name"] = "Please provide your first and last name to be listed publicly"
	}
	if r.Comments != "" && !r.IsPublic {
		errors["comments"] = "Comments are only shared if you make your name public"
	}
	if len(r.Comments) > MaxFreeTextLength {
		errors["comments"] = "Comments are too long"
	}
	if len(r.Notes) > MaxFreeTextLength {
		errors["notes"] = "Notes are too long"
	}
	if r.Email != "" {
		if _, err := mail.ParseAddress(r.Email); err != nil {
			errors["email"] = "Email is invalid"
		}
	}
	if r.Phone != "" {
		num, err := phonenumbers.Parse(r.Phone, DefaultPhoneRegion)
		if err != nil || !phonenumbers.IsValidNumber(num) {
			errors["phone"] = "Phone number is invalid"
		}
	}
	if r.Zone != nil && !Zone(*r.Zone).Valid() {
		errors["zone"] = "Zone is invalid"
	}
	if r.Role != "" && !Role(r.Role).Valid() {
		errors["role"] = "Role is invalid"
	}

	return errors
}

// Apply copies the validated form onto the account.
func (r *UpdateAccountRequest) Apply(a *Account) {
	a.Name = r.Name
	a.Email = r.Email
	a.Phone = r.Phone
	a.Role = Role(r.Role)
	a.IsPublic = r.IsPublic
	a.Comments = r.Comments
	a.Notes = r.Notes
	if r.Zone != nil {
		z := Zone(*r.Zone)
		a.Zone = &z
	} else {
		a.Zone = nil
	}
}

// AccountFilter narrows admin account listings.
type AccountFilter struct {
	IsPublic    *bool
	IsVoter     *bool
	IsModerated *bool
	Zone        *Zone
	Role        Role
	Query       string
}

// DeleteAccountRequest must carry confirm=true for the deletion to proceed.
type DeleteAccountRequest struct {
	Confirm bool `json:"confirm"`
}
