package models

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type Profile struct {
	ID           string    `gorm:"primaryKey;size:26" json:"id"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Phone        string    `gorm:"type:varchar(32)" json:"phone"`
	Username     string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"username"`
	Role         string    `gorm:"type:varchar(16);not null;default:user" json:"role"`
	PasswordHash string    `gorm:"type:varchar(128);not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Profile) TableName() string { return "profiles" }

func (p *Profile) IsAdmin() bool { return p.Role == RoleAdmin }
