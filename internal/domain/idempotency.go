package domain

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Idempotency represents a recorded result of a previously processed request,
// keyed by (user_id, scope, key). It enables safe retries for POST endpoints
// by returning the originally produced resource without re-executing side
// effects.
type Idempotency struct {
	Base
	UserID     string    `json:"userId"     gorm:"type:varchar(64);not null;uniqueIndex:ux_idem_user_scope_key,priority:1"`
	Scope      string    `json:"scope"      gorm:"type:varchar(128);not null;uniqueIndex:ux_idem_user_scope_key,priority:2"`
	Key        string    `json:"key"        gorm:"type:varchar(128);not null;uniqueIndex:ux_idem_user_scope_key,priority:3"`
	ResourceID string    `json:"resourceId" gorm:"type:varchar(36);not null"`
	Status     int       `json:"status"     gorm:"not null"`
	ExpiresAt  time.Time `json:"expiresAt"  gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// Expired reports whether the record no longer guards retries at now.
func (i *Idempotency) Expired(now time.Time) bool { return !now.Before(i.ExpiresAt) }

// Validate implements validation.Validatable.
func (i *Idempotency) Validate() error {
	return validation.ValidateStruct(i,
		validation.Field(&i.UserID, validation.Required),
		validation.Field(&i.Scope, validation.Required),
		validation.Field(&i.Key, validation.Required, validation.Length(1, 128)),
		validation.Field(&i.ResourceID, validation.Required),
		validation.Field(&i.ExpiresAt, validation.Required),
	)
}
