package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
)

func (e *testEnv) doJSON(t *testing.T, method, path, token string, body []byte) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

func TestListContactsExcludesCaller(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "u1", "Alice", "admin")
	env.seedUser(t, "u2", "Bob", "vendor")
	env.seedUser(t, "u3", "Cleo")

	status, body := env.doJSON(t, http.MethodGet, "/api/v1/chat", env.token(t, "u1", "Alice"), nil)
	if status != http.StatusOK {
		t.Fatalf("status %d: %s", status, body)
	}

	var resp struct {
		Success bool              `json:"success"`
		Data    []ContactResponse `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Success || len(resp.Data) != 2 {
		t.Fatalf("expected 2 contacts, got %+v", resp)
	}
	for _, contact := range resp.Data {
		if contact.ID == "u1" {
			t.Fatal("directory must exclude the caller")
		}
	}
}

func TestRESTRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.doJSON(t, http.MethodGet, "/api/v1/chat", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}

	status, _ = env.doJSON(t, http.MethodGet, "/api/v1/chat", "not-a-jwt", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", status)
	}
}

func TestSetOnlineFlag(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "u1", "Alice")

	status, body := env.doJSON(t, http.MethodPost, "/api/v1/chat/online",
		env.token(t, "u1", "Alice"), []byte(`{"isOnline":true}`))
	if status != http.StatusOK {
		t.Fatalf("status %d: %s", status, body)
	}

	status, body = env.doJSON(t, http.MethodGet, "/api/v1/chat", env.token(t, "u2", "Bob"), nil)
	if status != http.StatusOK {
		t.Fatalf("status %d: %s", status, body)
	}
	var resp struct {
		Data []ContactResponse `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var found bool
	for _, contact := range resp.Data {
		if contact.ID == "u1" {
			found = true
			if !contact.IsOnline {
				t.Fatal("expected u1 online")
			}
		}
	}
	if !found {
		t.Fatal("u1 missing from directory")
	}
}

func TestPostAndListMessagesByProvisionalKey(t *testing.T) {
	env := newTestEnv(t)
	aliceToken := env.token(t, "alice", "Alice")

	// Post under the provisional key before any socket join happened.
	status, body := env.doJSON(t, http.MethodPost, "/api/v1/chat/rooms/alice_bob/messages",
		aliceToken, []byte(`{"content":"hello","messageType":"text"}`))
	if status != http.StatusCreated {
		t.Fatalf("status %d: %s", status, body)
	}

	var posted struct {
		Data struct {
			Message struct {
				ID     string `json:"id"`
				RoomID string `json:"roomId"`
			} `json:"message"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &posted); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if posted.Data.Message.ID == "" {
		t.Fatal("expected server-assigned message id")
	}
	serverRoomID := posted.Data.Message.RoomID
	if serverRoomID == "" || serverRoomID == "alice_bob" {
		t.Fatalf("expected canonical room id, got %q", serverRoomID)
	}

	// History readable under both names.
	for _, roomName := range []string{"alice_bob", serverRoomID} {
		status, body = env.doJSON(t, http.MethodGet, "/api/v1/chat/rooms/"+roomName+"/messages", aliceToken, nil)
		if status != http.StatusOK {
			t.Fatalf("status %d for %s: %s", status, roomName, body)
		}
		var resp struct {
			Data HistoryResponse `json:"data"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if len(resp.Data.Messages) != 1 || resp.Data.Messages[0].Content != "hello" {
			t.Fatalf("unexpected history for %s: %+v", roomName, resp.Data)
		}
		if resp.Data.RoomID != serverRoomID {
			t.Fatalf("history room id %q, want %q", resp.Data.RoomID, serverRoomID)
		}
	}
}

func TestListMessagesUnknownRoomFailsOpen(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.doJSON(t, http.MethodGet, "/api/v1/chat/rooms/nobody_here/messages",
		env.token(t, "nobody", "Nobody"), nil)
	if status != http.StatusOK {
		t.Fatalf("status %d: %s", status, body)
	}

	var resp struct {
		Success bool            `json:"success"`
		Data    HistoryResponse `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Success || len(resp.Data.Messages) != 0 {
		t.Fatalf("expected empty history, got %+v", resp)
	}
}

func TestHistoryHiddenFromNonParticipants(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.doJSON(t, http.MethodPost, "/api/v1/chat/rooms/alice_bob/messages",
		env.token(t, "alice", "Alice"), []byte(`{"content":"secret"}`))
	if status != http.StatusCreated {
		t.Fatalf("seed message: status %d", status)
	}

	status, _ = env.doJSON(t, http.MethodGet, "/api/v1/chat/rooms/alice_bob/messages",
		env.token(t, "mallory", "Mallory"), nil)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}

	// Posting into someone else's provisional key must not create a room.
	status, _ = env.doJSON(t, http.MethodPost, "/api/v1/chat/rooms/bob_carol/messages",
		env.token(t, "mallory", "Mallory"), []byte(`{"content":"spoof"}`))
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}
