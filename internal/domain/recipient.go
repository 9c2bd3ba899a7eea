package domain

import (
	"strings"
	"time"
)

// Recipient is a known email address that dispatch records can point at.
// CreatedAt is set once on insert and never changes; tokens are derived
// from it, so recreating a recipient revokes every token issued before.
type Recipient struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	IsSubscribed bool      `json:"is_subscribed" db:"is_subscribed"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FullName joins the non-empty name parts with a space.
func (r Recipient) FullName() string {
	parts := make([]string, 0, 2)
	for _, p := range []string{r.FirstName, r.LastName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// String returns the address in display form: "a@b.com" or "First Last <a@b.com>".
func (r Recipient) String() string {
	return FormatAddress(r.Email, r.FullName())
}

// FormatAddress formats an email address with an optional display name.
func FormatAddress(email, name string) string {
	if name == "" {
		return email
	}
	return name + " <" + email + ">"
}

// MailingList is a named group of recipients.
type MailingList struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
