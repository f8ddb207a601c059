package domain

import "context"

// InboundMessage is one line of user input received from a channel.
type InboundMessage struct {
	Content     string
	ChannelName string
}

// OutboundMessage is a response sent back to the user.
type OutboundMessage struct {
	Content string
	IsError bool
}

// MessageHandler is a callback the channel invokes when it receives input.
// A handler returning an error does not stop the channel; the channel
// reports the error to the user and keeps reading.
type MessageHandler func(ctx context.Context, msg InboundMessage) error

// Channel is the interface for user-facing I/O adapters.
type Channel interface {
	Start(ctx context.Context, handler MessageHandler) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg OutboundMessage) error
	Name() string
}
