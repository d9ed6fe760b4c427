package mediscansdk

import (
	"encoding/json"
	"time"
)

// Response is the envelope every endpoint answers with.
type Response[T any] struct {
	StatusCode int        `json:"statusCode"`
	Message    string     `json:"message"`
	Data       T          `json:"data"`
	Errors     []string   `json:"errors"`
	Success    bool       `json:"success"`
	Error      *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo carries the cause of a failure in development deployments.
type ErrorInfo struct {
	Detail string `json:"detail,omitempty"`
}

// ErrorResponse is the shape of a failed call.
type ErrorResponse = Response[any]

// ============================================================================
// Auth
// ============================================================================

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ExternalLoginRequest struct {
	Token string `json:"token"`
}

// AuthData is returned by register, login, external login and refresh.
// The refresh token travels in the refreshToken cookie only.
type AuthData struct {
	User        Profile `json:"user"`
	AccessToken string  `json:"accessToken"`
}

type AuthResponse = Response[AuthData]

// ============================================================================
// Users
// ============================================================================

type Profile struct {
	ID               string           `json:"id"`
	Email            string           `json:"email"`
	Username         string           `json:"username"`
	FirstName        string           `json:"firstName"`
	LastName         string           `json:"lastName"`
	Phone            string           `json:"phone,omitempty"`
	Role             string           `json:"role"`
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

type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zipCode,omitempty"`
	Country string `json:"country,omitempty"`
}

type HealthInfo struct {
	BloodType   string   `json:"bloodType,omitempty"`
	Height      float64  `json:"height,omitempty"`
	Weight      float64  `json:"weight,omitempty"`
	Allergies   []string `json:"allergies"`
	Medications []string `json:"medications"`
}

type EmergencyContact struct {
	Name         string `json:"name,omitempty"`
	Relationship string `json:"relationship,omitempty"`
	Phone        string `json:"phone,omitempty"`
}

type Avatar struct {
	URL string `json:"url,omitempty"`
	Key string `json:"key,omitempty"`
}

type Settings struct {
	Language      string        `json:"language"`
	Theme         string        `json:"theme"`
	Timezone      string        `json:"timezone,omitempty"`
	Notifications Notifications `json:"notifications"`
}

type Notifications struct {
	Email bool `json:"email"`
	Push  bool `json:"push"`
	SMS   bool `json:"sms"`
}

type ProfileResponse = Response[Profile]

type AvatarData struct {
	Avatar Avatar `json:"avatar"`
}

type AvatarResponse = Response[AvatarData]

type UserPage struct {
	Users  []Profile `json:"users"`
	Total  int       `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}

type UserPageResponse = Response[UserPage]

type SetRoleRequest struct {
	Role string `json:"role"`
}

type SetStatusRequest struct {
	IsActive *bool `json:"isActive"`
}

// ============================================================================
// Chats
// ============================================================================

type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ChatSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type CreateChatRequest struct {
	Title string `json:"title,omitempty"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type ChatResponse = Response[Chat]
type ChatListResponse = Response[[]ChatSummary]

// ============================================================================
// Health records
// ============================================================================

// Record kinds as used in URLs and in AddRecordRequest.Type.
const (
	KindVitalSigns   = "vitalSigns"
	KindMedications  = "medications"
	KindAppointments = "appointments"
	KindConditions   = "conditions"
	KindAllergies    = "allergies"
)

type Entry struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data" swaggertype:"object"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type AddRecordRequest struct {
	Type string `json:"type"`
	Data any    `json:"data" swaggertype:"object"`
}

type RefillRequest struct {
	Remaining      *int   `json:"remaining"`
	NextRefillDate string `json:"nextRefillDate"`
}

type EntryResponse = Response[Entry]
type EntryListResponse = Response[[]Entry]

// ============================================================================
// Analysis, bootstrap and probes
// ============================================================================

type AnalyzeRequest struct {
	// Image is a data URL, "data:image/png;base64,...".
	Image string `json:"image"`
}

type AnalyzeResponse = Response[json.RawMessage]

type BootstrapRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

type HealthResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message,omitempty"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database string `json:"database"`
}
