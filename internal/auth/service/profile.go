package service

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"haritsetu/backend/internal/otp"
)

// Profile is what the user supplies to complete signup.
type Profile struct {
	Name     string `validate:"required,min=2,max=100"`
	Email    string `validate:"omitempty,email,max=254"`
	Phone    string `validate:"omitempty,max=20"`
	District string `validate:"max=100"`
	Taluka   string `validate:"max=100"`
	Village  string `validate:"max=100"`
	Role     string `validate:"omitempty,oneof=farmer officer expert"`
}

var validate = validator.New()

func (p *Profile) trim() {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(p.Email)
	p.Phone = strings.TrimSpace(p.Phone)
	p.District = strings.TrimSpace(p.District)
	p.Taluka = strings.TrimSpace(p.Taluka)
	p.Village = strings.TrimSpace(p.Village)
	p.Role = strings.ToLower(strings.TrimSpace(p.Role))
}

// validateProfile returns an *otp.ValidationError naming the first invalid field.
func validateProfile(p Profile) error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &otp.ValidationError{Field: strings.ToLower(fe.Field()), Reason: "failed " + fe.Tag()}
	}
	return &otp.ValidationError{Field: "profile", Reason: err.Error()}
}
