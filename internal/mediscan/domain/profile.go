package domain

import "time"

// Profile is the credential-free view of a user returned to clients.
type Profile struct {
	ID               string           `json:"id"`
	Email            string           `json:"email"`
	Username         string           `json:"username"`
	FirstName        string           `json:"firstName"`
	LastName         string           `json:"lastName"`
	Phone            string           `json:"phone,omitempty"`
	Role             Role             `json:"role"`
	AuthProvider     string           `json:"authProvider"`
	Address          Address          `json:"address"`
	Health           HealthInfo       `json:"health"`
	EmergencyContact EmergencyContact `json:"emergencyContact"`
	Avatar           Avatar           `json:"avatar"`
	Settings         Settings         `json:"settings"`
	IsActive         bool             `json:"isActive"`
	LastLogin        *time.Time       `json:"lastLogin,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:               u.ID,
		Email:            u.Email,
		Username:         u.Username,
		FirstName:        u.Details.FirstName,
		LastName:         u.Details.LastName,
		Phone:            u.Details.Phone,
		Role:             u.Role,
		AuthProvider:     u.Provider(),
		Address:          u.Details.Address,
		Health:           u.Details.Health,
		EmergencyContact: u.Details.EmergencyContact,
		Avatar:           u.Details.Avatar,
		Settings:         u.Details.Settings,
		IsActive:         u.Active,
		LastLogin:        u.LastLogin,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}
