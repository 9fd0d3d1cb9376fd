package session

// reconciler keeps the ordered message list of the active room and merges
// the three sources that feed it: optimistic local echoes, service
// broadcasts, and history loads.
type reconciler struct {
	messages []Message
}

// appendLocal adds an optimistic placeholder to the end of the list.
func (r *reconciler) appendLocal(m Message) {
	r.messages = append(r.messages, m)
}

// applyServer merges a service-confirmed message. A pending local echo
// with the same sender and content is replaced in place, keeping the
// message's position. A message whose id is already present is dropped.
// Everything else is appended.
func (r *reconciler) applyServer(m Message) {
	for i := range r.messages {
		if r.messages[i].ID == m.ID {
			return
		}
	}
	for i := range r.messages {
		cur := r.messages[i]
		if cur.IsLocalEcho() && cur.SenderID == m.SenderID && cur.Content == m.Content {
			r.messages[i] = m
			return
		}
	}
	r.messages = append(r.messages, m)
}

// applyHistory merges a history page. Loaded messages land first, then the
// entries the history did not cover (local echoes and broadcasts that beat
// the load) are re-applied on top, so an in-flight send survives a reload.
// An echo whose persisted copy already appears in the page is dropped
// instead of re-appended.
func (r *reconciler) applyHistory(history []Message) {
	pending := r.messages
	r.messages = append(make([]Message, 0, len(history)+len(pending)), history...)
	for _, m := range pending {
		if m.IsLocalEcho() {
			if !r.containsContent(m.SenderID, m.Content) {
				r.appendLocal(m)
			}
		} else {
			r.applyServer(m)
		}
	}
}

func (r *reconciler) containsContent(senderID, content string) bool {
	for _, m := range r.messages {
		if !m.IsLocalEcho() && m.SenderID == senderID && m.Content == content {
			return true
		}
	}
	return false
}

// markRead flips own messages with the given ids to the read status.
func (r *reconciler) markRead(ids []string, status string) {
	if len(ids) == 0 {
		return
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	for i := range r.messages {
		if _, ok := want[r.messages[i].ID]; ok {
			r.messages[i].Status = status
		}
	}
}

// snapshot returns a copy of the current list.
func (r *reconciler) snapshot() []Message {
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// clear drops every message, used when the active room changes.
func (r *reconciler) clear() {
	r.messages = nil
}
