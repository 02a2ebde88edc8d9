package domain

// ChatMessage is the delivery view of a message. Persistence belongs to the
// message collaborator; the signaling layer only fans it out.
type ChatMessage struct {
	ID         string  `json:"id"`
	SenderID   UserID  `json:"senderId"`
	ReceiverID UserID  `json:"receiverId,omitempty"`
	GroupID    GroupID `json:"groupId,omitempty"`
	Text       string  `json:"text"`
	Seen       bool    `json:"seen"`
}
