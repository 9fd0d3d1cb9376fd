package session

import (
	"context"
	"net/http"
)

// Contact is a user directory entry.
type Contact struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Roles    []string `json:"roles"`
	IsOnline bool     `json:"isOnline"`
}

// Contacts fetches the user directory, everyone except the caller.
func (a *API) Contacts(ctx context.Context) ([]Contact, error) {
	var contacts []Contact
	if err := a.do(ctx, http.MethodGet, "/api/v1/chat", nil, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

// SetOnline flips the caller's directory online flag. The socket already
// tracks live presence; this flag covers clients that only use REST.
func (a *API) SetOnline(ctx context.Context, online bool) error {
	req := struct {
		IsOnline bool `json:"isOnline"`
	}{IsOnline: online}
	return a.do(ctx, http.MethodPost, "/api/v1/chat/online", req, nil)
}
