package models

import "time"

// User roles.
const (
	RoleCustomer = "customer"
	RoleSalesRep = "sales_rep"
	RoleAdmin    = "admin"
)

// User represents an account stored in the users collection. The JSON
// tags are the persisted wire format and must round-trip exactly.
type User struct {
	ID                     string    `json:"id"`
	Email                  string    `json:"email"`
	FirstName              string    `json:"firstName"`
	LastName               string    `json:"lastName"`
	PasswordHash           string    `json:"passwordHash"`
	Role                   string    `json:"role"`
	ReferralCode           string    `json:"referralCode"`
	ReferralCredits        float64   `json:"referralCredits"`
	TotalReferrals         int       `json:"totalReferrals"`
	ReferralOrdersCredited []string  `json:"referralOrdersCredited,omitempty"`
	CreatedAt              time.Time `json:"createdAt"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

// FullName returns the display name used in referral confirmations and
// admin notifications.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "" && u.LastName == "":
		return u.Email
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// HasCreditedOrder reports whether orderID already credited this user.
func (u *User) HasCreditedOrder(orderID string) bool {
	for _, id := range u.ReferralOrdersCredited {
		if id == orderID {
			return true
		}
	}
	return false
}
