package core

import "time"

// Message is one delivery of a published body to a subscription.
type Message struct {
	ID           string
	Destination  string
	Subscription string
	ContentType  string
	Body         []byte
	CreatedAt    time.Time
}
