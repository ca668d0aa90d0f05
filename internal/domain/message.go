package domain

// Button is an inline keyboard button carrying a callback payload.
type Button struct {
	Label string
	Data  string
}

// Message is an outbound message. When PhotoRef is set the message is a photo
// and Text becomes its caption.
type Message struct {
	Text     string
	PhotoRef string
	Buttons  [][]Button
}

// MessageRef points at a message already delivered, so its buttons can be
// edited later.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// IsZero reports whether the ref points nowhere.
func (r MessageRef) IsZero() bool {
	return r.ChatID == 0 && r.MessageID == 0
}
