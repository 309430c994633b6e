package models

import "context"

// Notification is one rendered chat message
type Notification struct {
	Text string
	// Mint, when set, attaches the report and snipe buttons for that token.
	Mint string
}

// NotificationService delivers a notification to a chat.
type NotificationService interface {
	SendNotification(ctx context.Context, chatID int64, notification Notification) error
}
