package models

import "time"

// ShareLink grants anonymous access to a published assessment via token.
type ShareLink struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	AssessmentID uint   `json:"assessment_id" gorm:"not null;index"`
	Token        string `json:"token" gorm:"not null;uniqueIndex;size:64"`

	ExpiresAt *time.Time `json:"expires_at"`
	MaxUses   *int       `json:"max_uses"`
	UseCount  int        `json:"use_count"`
	Revoked   bool       `json:"revoked"`

	CreatedBy string    `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Assessment Assessment `json:"assessment" gorm:"foreignKey:AssessmentID"`
}

// Usable reports whether the link still admits participants.
func (l *ShareLink) Usable(now time.Time) bool {
	if l.Revoked {
		return false
	}
	if l.ExpiresAt != nil && now.After(*l.ExpiresAt) {
		return false
	}
	if l.MaxUses != nil && l.UseCount >= *l.MaxUses {
		return false
	}
	return true
}
