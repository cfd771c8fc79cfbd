package store

import (
	"marketlink/protocol"
)

// AppendChatMessage persists one chat message for late-joiner history.
func (db *DB) AppendChatMessage(m *protocol.ChatMessage) error {
	_, err := db.Exec(db.Q(`INSERT INTO chat_messages (event_id, sender_id, sender_name, content) VALUES (?, ?, ?, ?)`),
		m.EventID, m.SenderID, m.SenderName, m.Content)
	return err
}

// ChatHistory returns the most recent messages for an event, oldest first.
func (db *DB) ChatHistory(eventID string, limit int) ([]*protocol.ChatMessage, error) {
	rows, err := db.Query(db.Q(`SELECT event_id, sender_id, sender_name, content, sent_at FROM (
		SELECT id, event_id, sender_id, sender_name, content, sent_at FROM chat_messages WHERE event_id=? ORDER BY id DESC LIMIT ?
	) recent ORDER BY id`), eventID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*protocol.ChatMessage
	for rows.Next() {
		var m protocol.ChatMessage
		var sentAt any
		if err := rows.Scan(&m.EventID, &m.SenderID, &m.SenderName, &m.Content, &sentAt); err != nil {
			return nil, err
		}
		m.Timestamp = parseTime(sentAt)
		out = append(out, &m)
	}
	return out, rows.Err()
}
