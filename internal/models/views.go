package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserView is the read-optimised projection of a user.
// It never exposes the password hash.
type UserView struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Phone     string          `json:"phone"`
	BirthDate time.Time       `json:"birthDate"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdTimestamp"`
	UpdatedAt time.Time       `json:"updatedTimestamp"`
}

// View projects the write model onto its read representation.
func (u User) View() UserView {
	return UserView{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		BirthDate: u.BirthDate,
		Balance:   u.Balance,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
