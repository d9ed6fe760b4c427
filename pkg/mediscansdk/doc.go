/*
Package mediscansdk is a Go client for the MediScan REST API.

# Client and Session

A Client covers the public endpoints and produces Sessions:

	client := mediscansdk.NewClient("http://localhost:5000")

	health, err := client.Health(ctx)

	session, err := client.Login(ctx, "ada@example.com", "correct horse")

A Session carries the access token. The refresh token lives in the
refreshToken cookie, which the Client's cookie jar stores, so a Session
and its Client should stay paired:

	profile, err := session.Profile(ctx)
	chat, err := session.CreateChat(ctx, "Headache")
	entry, err := session.AddRecord(ctx, profile.ID, mediscansdk.KindMedications, med)

# Token renewal

The server renews an expired access token on any protected call when the
refresh cookie is still valid, and returns the new token in the
Authorization response header. Sessions adopt that token automatically.
Session.Refresh rotates both tokens explicitly.

# Errors

Failed calls return *APIError with the status code, message and any
validation problems from the response envelope:

	_, err := session.ListUsers(ctx, 20, 0)
	if mediscansdk.IsStatus(err, http.StatusForbidden) {
		// not an admin
	}

Sessions are safe for concurrent use.
*/
package mediscansdk
