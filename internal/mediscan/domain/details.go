package domain

// Details are the user-editable profile fields. Drivers persist them as a
// single JSON document.
type Details struct {
	FirstName        string           `json:"firstName"`
	LastName         string           `json:"lastName"`
	Phone            string           `json:"phone,omitempty"`
	Address          Address          `json:"address"`
	Health           HealthInfo       `json:"health"`
	EmergencyContact EmergencyContact `json:"emergencyContact"`
	Avatar           Avatar           `json:"avatar"`
	Settings         Settings         `json:"settings"`
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

func DefaultSettings() Settings {
	return Settings{
		Language:      "en",
		Theme:         "light",
		Notifications: Notifications{Email: true, Push: true},
	}
}

// NewDetails returns the details of a freshly registered user.
func NewDetails(firstName, lastName string) Details {
	return Details{
		FirstName: firstName,
		LastName:  lastName,
		Health:    HealthInfo{Allergies: []string{}, Medications: []string{}},
		Settings:  DefaultSettings(),
	}
}
