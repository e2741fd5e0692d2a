// Package validation is the field validator for users and entries. It
// combines go-playground struct/var rules with the domain checks the
// records need: free-text shape, email, Israeli phone, checksum national
// id, birth date not in the future, strictly positive amounts.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noa1020/Finance-master/internal/models"
)

// ErrInvalid is wrapped by every validation failure. No side effect has
// occurred when it is returned.
var ErrInvalid = errors.New("invalid record")

var (
	freeTextPattern = regexp.MustCompile(`^[a-zA-Z0-9\s+\-/']+$`)
	landlinePattern = regexp.MustCompile(`^0\d{0,2}-?\d{7}$`)
	mobilePattern   = regexp.MustCompile(`^05\d(-|\s)?\d{7}$`)
)

type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	return &Validator{v: validator.New()}
}

func invalid(field, reason string) error {
	return fmt.Errorf("%s: %s: %w", field, reason, ErrInvalid)
}

// User validates the full user record, including the checksum id.
func (vd *Validator) User(u models.User) error {
	if !ValidFreeText(u.Name) {
		return invalid("name", "must be a non-empty alphanumeric string")
	}
	if u.Password == "" {
		return invalid("password", "must not be empty")
	}
	if err := vd.v.Var(u.Email, "required,email"); err != nil {
		return invalid("email", "must be a valid email address")
	}
	if !ValidNationalID(u.ID) {
		return invalid("id", "must be a valid 9-digit checksum identifier")
	}
	if !ValidPhone(u.Phone) {
		return invalid("phone", "must be a valid phone number")
	}
	if !ValidBirthDate(u.BirthDate) {
		return invalid("birthDate", "must not be in the future")
	}
	return nil
}

// Entry validates an expense or revenue record.
func (vd *Validator) Entry(e models.Entry) error {
	if !ValidFreeText(e.Counterparty) {
		return invalid("counterparty", "must be a non-empty alphanumeric string")
	}
	if !ValidFreeText(e.Documentation) {
		return invalid("documentation", "must be a non-empty alphanumeric string")
	}
	if !e.Amount.IsPositive() {
		return invalid("amount", "must be strictly positive")
	}
	return nil
}

// ValidFreeText reports whether s is a non-blank alphanumeric-ish string.
func ValidFreeText(s string) bool {
	return strings.TrimSpace(s) != "" && freeTextPattern.MatchString(s)
}

// ValidPhone accepts Israeli landline and mobile numbers.
func ValidPhone(phone string) bool {
	return landlinePattern.MatchString(phone) || mobilePattern.MatchString(phone)
}

// ValidBirthDate accepts any non-zero date up to the present.
func ValidBirthDate(d time.Time) bool {
	return !d.IsZero() && !d.After(time.Now())
}

// ValidNationalID checks the 9-digit Luhn-style checksum used by Israeli
// identity numbers: even-positioned digits are doubled (summing the digits
// of two-digit products) and the total must be divisible by 10.
func ValidNationalID(id int64) bool {
	if id < 100000000 || id > 999999999 {
		return false
	}
	total := 0
	divisor := int64(100000000)
	for i := 0; i < 9; i++ {
		digit := int((id / divisor) % 10)
		if i%2 == 1 {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		total += digit
		divisor /= 10
	}
	return total%10 == 0
}
