package domain

import (
	"errors"
	"time"
)

// Account is a registered portal user, keyed by the normalized identifier it signed up with.
type Account struct {
	ID         string
	Identifier string
	Phone      string // optional; E.164
	Email      string // optional; lower-case
	Name       string
	District   string
	Taluka     string
	Village    string
	Role       Role
	Verified   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Role string

const (
	RoleFarmer  Role = "farmer"
	RoleOfficer Role = "officer"
	RoleExpert  Role = "expert"
)

// ParseRole returns the role for s; empty maps to RoleFarmer.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case "":
		return RoleFarmer, nil
	case RoleFarmer, RoleOfficer, RoleExpert:
		return r, nil
	default:
		return "", errors.New("role must be farmer, officer or expert")
	}
}

// Validate validates the account for persistence. Returns an error describing the first validation failure.
func (a *Account) Validate() error {
	if a.ID == "" {
		return errors.New("id is required")
	}
	if a.Identifier == "" {
		return errors.New("identifier is required")
	}
	if a.Name == "" {
		return errors.New("name is required")
	}
	if a.Phone == "" && a.Email == "" {
		return errors.New("phone or email is required")
	}
	if a.Role == "" {
		a.Role = RoleFarmer
	}
	if _, err := ParseRole(string(a.Role)); err != nil {
		return err
	}
	return nil
}
