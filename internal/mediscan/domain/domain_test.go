package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	"github.com/stretchr/testify/require"
)

func TestCredentialColumns(t *testing.T) {
	c, err := domain.CredentialFromColumns("$argon2id$x", "")
	require.NoError(t, err)
	require.Equal(t, domain.LocalCredential{Hash: "$argon2id$x"}, c)

	c, err = domain.CredentialFromColumns("", "user_2abc")
	require.NoError(t, err)
	require.Equal(t, domain.ExternalCredential{ProviderID: "user_2abc"}, c)

	_, err = domain.CredentialFromColumns("", "")
	require.ErrorIs(t, err, domain.ErrNoCredential)

	_, err = domain.CredentialFromColumns("h", "e")
	require.ErrorIs(t, err, domain.ErrCredentialMixture)

	hash, ext := domain.CredentialColumns(domain.ExternalCredential{ProviderID: "p"})
	require.Empty(t, hash)
	require.Equal(t, "p", ext)
}

func TestUserValidate(t *testing.T) {
	u := domain.User{
		ID:         "01HZ",
		Email:      "alice@example.com",
		Role:       domain.RoleUser,
		Credential: domain.LocalCredential{Hash: "h"},
	}
	require.NoError(t, u.Validate())

	bad := u
	bad.Credential = nil
	require.ErrorIs(t, bad.Validate(), domain.ErrNoCredential)

	bad = u
	bad.Role = "root"
	require.ErrorIs(t, bad.Validate(), domain.ErrInvalidRole)

	bad = u
	bad.Email = "nope"
	require.ErrorIs(t, bad.Validate(), domain.ErrInvalidEmail)
}

func TestParseEmail(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
		ok   bool
	}{
		{"  Alice@Example.COM ", "alice@example.com", true},
		{"bob@mail.example.org", "bob@mail.example.org", true},
		{"", "", false},
		{"no-at-sign", "", false},
		{"Alice <alice@example.com>", "", false},
		{"alice@localhost", "", false},
	} {
		t.Run(tc.in, func(t *testing.T) {
			got, err := domain.ParseEmail(tc.in)
			if !tc.ok {
				require.ErrorIs(t, err, domain.ErrInvalidEmail)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	require.Equal(t, "alice", domain.UsernameFromEmail("alice@example.com"))
}

func TestProfileOmitsCredentials(t *testing.T) {
	until := time.Now().Add(time.Hour)
	u := domain.User{
		ID:           "01HZ",
		Email:        "alice@example.com",
		Role:         domain.RoleAdmin,
		Credential:   domain.LocalCredential{Hash: "$argon2id$secret"},
		Lockout:      domain.Lockout{Attempts: 3, LockedUntil: &until},
		TokenVersion: 7,
		Active:       true,
		Details:      domain.NewDetails("Alice", "Smith"),
	}

	b, err := json.Marshal(u.Profile())
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	require.Equal(t, "Alice", m["firstName"])
	require.Equal(t, "local", m["authProvider"])
	require.Equal(t, true, m["isActive"])
	require.NotContains(t, string(b), "argon2id")
	for _, k := range []string{"passwordHash", "password", "tokenVersion", "lockout", "loginAttempts"} {
		require.NotContains(t, m, k)
	}

	settings := m["settings"].(map[string]any)
	require.Equal(t, "en", settings["language"])
	require.Equal(t, "light", settings["theme"])
}

func TestLockout(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p := domain.LockoutPolicy{MaxAttempts: 3, Duration: time.Hour}

	var l domain.Lockout
	for i := 1; i < 3; i++ {
		l = l.RegisterFailure(now, p)
		require.Equal(t, i, l.Attempts)
		require.False(t, l.Locked(now))
	}

	l = l.RegisterFailure(now, p)
	require.Equal(t, 3, l.Attempts)
	require.True(t, l.Locked(now))
	require.True(t, l.Locked(now.Add(59*time.Minute)))
	require.False(t, l.Locked(now.Add(time.Hour)))

	// A failure after the lock lapsed starts over.
	l = l.RegisterFailure(now.Add(2*time.Hour), p)
	require.Equal(t, 1, l.Attempts)
	require.Nil(t, l.LockedUntil)
}

func TestParseKind(t *testing.T) {
	k, err := domain.ParseKind("vitals")
	require.NoError(t, err)
	require.Equal(t, domain.KindVitalSigns, k)

	for _, want := range domain.Kinds {
		got, err := domain.ParseKind(string(want))
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err = domain.ParseKind("labs")
	require.ErrorIs(t, err, domain.ErrInvalidKind)

	require.Equal(t, "Vital signs", domain.KindVitalSigns.Title())
	require.Equal(t, "medications", domain.KindMedications.Plural())
	require.Equal(t, "allergy", domain.KindAllergies.Singular())
}

func TestDecodeRecord(t *testing.T) {
	t.Run("medication defaults", func(t *testing.T) {
		rec, err := domain.DecodeRecord(domain.KindMedications,
			[]byte(`{"name":"Ibuprofen","dosage":"200mg","frequency":"daily","startDate":"2026-01-02"}`))
		require.NoError(t, err)

		m := rec.(*domain.Medication)
		require.Equal(t, "Active", m.Status)
		require.Equal(t, 2026, m.StartDate.Year())
	})

	t.Run("missing fields are listed", func(t *testing.T) {
		_, err := domain.DecodeRecord(domain.KindMedications, []byte(`{"name":"Ibuprofen"}`))
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
		require.ElementsMatch(t, []string{
			"dosage is required",
			"frequency is required",
			"startDate is required",
		}, ve.Problems)
	})

	t.Run("enum", func(t *testing.T) {
		_, err := domain.DecodeRecord(domain.KindAllergies, []byte(`{"name":"Peanuts","severity":"Deadly"}`))
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
		require.Len(t, ve.Problems, 1)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := domain.DecodeRecord(domain.KindConditions, []byte(`{"name":"Asthma","status":"Active","owner":"x"}`))
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("vital sign numeric value", func(t *testing.T) {
		rec, err := domain.DecodeRecord(domain.KindVitalSigns, []byte(`{"type":"heart_rate","value":72,"unit":"bpm"}`))
		require.NoError(t, err)
		require.NotNil(t, rec.(*domain.VitalSign).Timestamp)
	})
}

func TestPatchRecord(t *testing.T) {
	stored := []byte(`{"type":"checkup","provider":"Dr. Who","date":"2026-02-01T09:00:00Z","status":"Scheduled"}`)

	rec, err := domain.PatchRecord(domain.KindAppointments, stored, []byte(`{"status":"Completed","notes":"all good"}`))
	require.NoError(t, err)
	a := rec.(*domain.Appointment)
	require.Equal(t, "Completed", a.Status)
	require.Equal(t, "Dr. Who", a.Provider)
	require.Equal(t, "all good", a.Notes)

	_, err = domain.PatchRecord(domain.KindAppointments, stored, []byte(`{"status":"Maybe"}`))
	require.Error(t, err)

	_, err = domain.PatchRecord(domain.KindAppointments, stored, []byte(`{"userId":"someone-else"}`))
	require.Error(t, err)
}

func TestMedicationRefill(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	m := &domain.Medication{}
	m.Refill(2, domain.Date{Time: now.AddDate(0, 1, 0)}, now)

	require.Equal(t, 2, m.Refills.Remaining)
	require.True(t, m.Refills.LastRefillDate.Equal(now))
	require.Equal(t, time.June, m.Refills.NextRefillDate.Month())
}

func TestDateJSON(t *testing.T) {
	var d domain.Date
	require.NoError(t, json.Unmarshal([]byte(`"2026-03-04"`), &d))
	require.Equal(t, time.March, d.Month())

	b, err := json.Marshal(d)
	require.NoError(t, err)
	require.Equal(t, `"2026-03-04T00:00:00Z"`, string(b))

	require.Error(t, json.Unmarshal([]byte(`"yesterday"`), &d))
	require.Error(t, json.Unmarshal([]byte(`5`), &d))
}
