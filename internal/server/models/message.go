package models

import "time"

type Message struct {
	ID               int64
	SenderAddress    string
	RecipientAddress string
	Content          string
	CreatedAt        time.Time
	IsRead           bool
}

// Conversation summarizes the thread between the caller and one partner.
type Conversation struct {
	PartnerAddress  string
	PartnerUsername string
	LastMessage     string
	LastMessageAt   time.Time
	UnreadCount     int
}
