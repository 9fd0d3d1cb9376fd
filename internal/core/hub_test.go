package core

import (
	"context"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/veloramarket/velora-chat/internal/proto"
)

func startHub(t *testing.T) *Hub {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)

	hub := NewHub(nil, nil)
	go hub.Run(ctx)
	return hub
}

func TestHubJoinAssignsServerRoomID(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("c1", "alice", "Alice")
	hub.RegisterClient(alice)
	mustEvent(t, alice.Events, proto.EventConnection)

	alice.Commands <- &proto.JoinRoomCommand{RoomID: "alice_bob", ContactID: "bob", ContactName: "Bob"}

	ev := mustEvent(t, alice.Events, proto.EventRoomJoined)
	joined := ev.(*proto.RoomJoinedEvent)
	if joined.DirectKey != "alice_bob" {
		t.Fatalf("direct key %q, want alice_bob", joined.DirectKey)
	}
	if joined.RoomID == "" || joined.RoomID == "alice_bob" {
		t.Fatalf("room id must be server-assigned, got %q", joined.RoomID)
	}
}

func TestHubMessageFanOutIncludesSender(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("c1", "alice", "Alice")
	bob := NewClient("c2", "bob", "Bob")
	hub.RegisterClient(alice)
	hub.RegisterClient(bob)

	alice.Commands <- &proto.JoinRoomCommand{ContactID: "bob"}
	bob.Commands <- &proto.JoinRoomCommand{ContactID: "alice"}
	mustEvent(t, alice.Events, proto.EventRoomJoined)
	mustEvent(t, bob.Events, proto.EventRoomJoined)

	alice.Commands <- &proto.SendMessageCommand{RoomID: "alice_bob", Content: "hi"}

	// Both sides see the message; the sender needs the echo to reconcile
	// its local placeholder.
	for _, c := range []*Client{alice, bob} {
		ev := mustEvent(t, c.Events, proto.EventNewMessage)
		msg := ev.(*proto.NewMessageEvent).Message
		if msg.Content != "hi" || msg.SenderID != "alice" {
			t.Fatalf("unexpected message for %s: %+v", c.UserID, msg)
		}
		if msg.ID == "" {
			t.Fatalf("message id must be assigned")
		}
	}
}

func TestHubAddressesRoomByProvisionalKey(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("c1", "alice", "Alice")
	hub.RegisterClient(alice)

	alice.Commands <- &proto.JoinRoomCommand{ContactID: "bob"}
	joined := mustEvent(t, alice.Events, proto.EventRoomJoined).(*proto.RoomJoinedEvent)

	// Send by key, then by server id. Both must resolve.
	alice.Commands <- &proto.SendMessageCommand{RoomID: "alice_bob", Content: "one"}
	first := mustEvent(t, alice.Events, proto.EventNewMessage).(*proto.NewMessageEvent)
	if first.Message.RoomID != joined.RoomID {
		t.Fatalf("message room %q, want canonical %q", first.Message.RoomID, joined.RoomID)
	}

	alice.Commands <- &proto.SendMessageCommand{RoomID: joined.RoomID, Content: "two"}
	second := mustEvent(t, alice.Events, proto.EventNewMessage).(*proto.NewMessageEvent)
	if second.Message.Content != "two" {
		t.Fatalf("unexpected second message: %+v", second.Message)
	}
}

func TestHubSendWithoutJoinProducesError(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("c1", "alice", "Alice")
	hub.RegisterClient(alice)

	alice.Commands <- &proto.SendMessageCommand{RoomID: "ghost", Content: "hi"}

	ev := mustEvent(t, alice.Events, proto.EventError).(*proto.ErrorEvent)
	if ev.Code != ErrCodeNotInRoom {
		t.Fatalf("expected %s, got %+v", ErrCodeNotInRoom, ev)
	}
}

func TestHubLeaveUnknownRoomError(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("c1", "alice", "Alice")
	hub.RegisterClient(alice)

	alice.Commands <- &proto.LeaveRoomCommand{RoomID: "ghost"}

	ev := mustEvent(t, alice.Events, proto.EventError).(*proto.ErrorEvent)
	if ev.Code != ErrCodeRoomNotFound {
		t.Fatalf("expected %s, got %+v", ErrCodeRoomNotFound, ev)
	}
}

func TestHubPresencePush(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("c1", "alice", "Alice")
	hub.RegisterClient(alice)
	mustEvent(t, alice.Events, proto.EventConnection)

	bob := NewClient("c2", "bob", "Bob")
	hub.RegisterClient(bob)

	online := mustEvent(t, alice.Events, proto.EventUserOnline).(*proto.UserOnlineEvent)
	if online.User.ID != "bob" {
		t.Fatalf("expected bob online, got %+v", online.User)
	}

	hub.UnregisterClient(bob)

	offline := mustEvent(t, alice.Events, proto.EventUserOffline).(*proto.UserOfflineEvent)
	if offline.User.ID != "bob" {
		t.Fatalf("expected bob offline, got %+v", offline.User)
	}
}

func TestHubTypingRelayExcludesSender(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("c1", "alice", "Alice")
	bob := NewClient("c2", "bob", "Bob")
	hub.RegisterClient(alice)
	hub.RegisterClient(bob)

	alice.Commands <- &proto.JoinRoomCommand{ContactID: "bob"}
	bob.Commands <- &proto.JoinRoomCommand{ContactID: "alice"}
	mustEvent(t, alice.Events, proto.EventRoomJoined)
	mustEvent(t, bob.Events, proto.EventRoomJoined)

	alice.Commands <- &proto.TypingCommand{RoomID: "alice_bob", IsTyping: true}

	typing := mustEvent(t, bob.Events, proto.EventTyping).(*proto.TypingEvent)
	if typing.UserID != "alice" || !typing.IsTyping {
		t.Fatalf("unexpected typing event: %+v", typing)
	}

	mustNoEvent(t, alice.Events, proto.EventTyping, 100*time.Millisecond)
}

func TestHubRoomAvailableNotifiesCounterpart(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("c1", "alice", "Alice")
	bob := NewClient("c2", "bob", "Bob")
	hub.RegisterClient(alice)
	hub.RegisterClient(bob)
	mustEvent(t, bob.Events, proto.EventConnection)

	alice.Commands <- &proto.JoinRoomCommand{ContactID: "bob", ContactName: "Bob"}

	avail := mustEvent(t, bob.Events, proto.EventRoomAvailable).(*proto.RoomAvailableEvent)
	if avail.Initiator.ID != "alice" || avail.Participant.ID != "bob" {
		t.Fatalf("unexpected room_available: %+v", avail)
	}
	if avail.DirectKey != "alice_bob" {
		t.Fatalf("direct key %q", avail.DirectKey)
	}
}

func TestHubOnlineUsersRequest(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("c1", "alice", "Alice")
	bob := NewClient("c2", "bob", "Bob")
	hub.RegisterClient(alice)
	hub.RegisterClient(bob)
	mustEvent(t, alice.Events, proto.EventConnection)

	alice.Commands <- &proto.RequestOnlineUsersCommand{}

	online := mustEvent(t, alice.Events, proto.EventUserOnline).(*proto.UserOnlineEvent)
	if online.User.ID != "bob" {
		t.Fatalf("expected bob, got %+v", online.User)
	}
}

func TestHubAvailableRoomsWithoutStoreIsEmpty(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("c1", "alice", "Alice")
	hub.RegisterClient(alice)

	alice.Commands <- &proto.RequestAvailableRoomsCommand{}

	list := mustEvent(t, alice.Events, proto.EventAvailableRoomsList).(*proto.AvailableRoomsListEvent)
	if len(list.Rooms) != 0 {
		t.Fatalf("expected empty list, got %d", len(list.Rooms))
	}
}

func TestHubBroadcastKeepsClientMessageID(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("c1", "alice", "Alice")
	hub.RegisterClient(alice)

	alice.Commands <- &proto.JoinRoomCommand{ContactID: "bob"}
	mustEvent(t, alice.Events, proto.EventRoomJoined)

	alice.Commands <- &proto.SendMessageCommand{RoomID: "alice_bob", MessageID: "wire-1", Content: "hi"}
	ev := mustEvent(t, alice.Events, proto.EventNewMessage).(*proto.NewMessageEvent)
	if ev.Message.ID != "wire-1" {
		t.Fatalf("broadcast id %q, want the client-chosen wire-1", ev.Message.ID)
	}

	// Placeholder ids are never honored.
	alice.Commands <- &proto.SendMessageCommand{RoomID: "alice_bob", MessageID: "local_abc", Content: "yo"}
	ev = mustEvent(t, alice.Events, proto.EventNewMessage).(*proto.NewMessageEvent)
	if ev.Message.ID == "local_abc" || ev.Message.ID == "" {
		t.Fatalf("unexpected broadcast id %q", ev.Message.ID)
	}
}

func TestHubUnregisterReleasesClient(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("c1", "alice", "Alice")
	hub.RegisterClient(alice)
	mustEvent(t, alice.Events, proto.EventConnection)

	hub.UnregisterClient(alice)

	select {
	case <-alice.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client not released after unregister")
	}
}

func TestHubConnectionChurnDoesNotLeakGoroutines(t *testing.T) {
	hub := startHub(t)

	baseline := runtime.NumGoroutine()
	for i := 0; i < 50; i++ {
		c := NewClient(fmt.Sprintf("conn-%d", i), fmt.Sprintf("user-%d", i), "")
		hub.RegisterClient(c)
		hub.UnregisterClient(c)
	}

	// Every pump must wind down once its client is gone.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= baseline+5 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("goroutines %d, baseline %d: pumps survive their clients", runtime.NumGoroutine(), baseline)
}
