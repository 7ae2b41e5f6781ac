package users

import (
	"time"
)

type Role string

const (
	RoleOwner Role = "OWNER"
	RoleStaff Role = "STAFF"
	RoleAdmin Role = "ADMIN"
)

// User is a restaurant account. Owners hold the subscription; staff manage the floor.
// The subscription columns are a denormalised pointer kept in step by the billing paths.
type User struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	FirstName string `json:"first_name" gorm:"not null"`
	LastName  string `json:"last_name" gorm:"not null"`
	Password  string `json:"-" gorm:"not null"`
	Role      Role   `json:"role" gorm:"type:varchar(20);not null;default:'OWNER'"`
	Email     string `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`

	CurrentSubscriptionID *uint   `json:"current_subscription_id,omitempty" gorm:"index"`
	CurrentPlanID         *uint   `json:"current_plan_id,omitempty"`
	SubscriptionStatus    *string `json:"subscription_status,omitempty" gorm:"type:varchar(20)"`
	BillingCustomerID     *string `json:"billing_customer_id,omitempty" gorm:"type:varchar(255);index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func IsValidRole(role string) bool {
	switch Role(role) {
	case RoleOwner, RoleStaff, RoleAdmin:
		return true
	default:
		return false
	}
}
