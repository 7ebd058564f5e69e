// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

// Package notify publishes run-level notifications (the toast-style events
// the dashboard surfaces) on an in-process watermill pub/sub channel.
//
// Only fatal and run-completion events are published here; per-record
// failures go to the activity log alone, which keeps a noisy batch from
// flooding the user with notifications.
package notify

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/synclinic/synclinic/internal/logging"
)

// Topic is the pub/sub topic notifications are published on.
const Topic = "sync.notifications"

// Notification levels.
const (
	LevelSuccess = "success"
	LevelError   = "error"
)

// Notification is one user-visible event.
type Notification struct {
	Level  string    `json:"level"`
	Title  string    `json:"title"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Notifier publishes notifications to in-process subscribers.
type Notifier struct {
	channel *gochannel.GoChannel
}

// New creates a notifier backed by a buffered gochannel pub/sub.
func New() *Notifier {
	return &Notifier{
		channel: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			zerologAdapter{},
		),
	}
}

// Publish emits one notification. Publish failures are logged, never
// propagated: a dead dashboard subscriber must not fail a sync run.
func (n *Notifier) Publish(level, title, detail string) {
	payload, err := json.Marshal(Notification{
		Level:  level,
		Title:  title,
		Detail: detail,
		At:     time.Now().UTC(),
	})
	if err != nil {
		logging.Err(err).Msg("Failed to marshal notification")
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := n.channel.Publish(Topic, msg); err != nil {
		logging.Err(err).Str("title", title).Msg("Failed to publish notification")
	}
}

// Subscribe returns the notification message stream. The channel closes
// when ctx is cancelled or the notifier shuts down.
func (n *Notifier) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return n.channel.Subscribe(ctx, Topic)
}

// Close shuts the pub/sub channel down.
func (n *Notifier) Close() error {
	return n.channel.Close()
}

// zerologAdapter bridges watermill's logger interface onto the shared
// zerolog logger.
type zerologAdapter struct {
	fields watermill.LogFields
}

func (a zerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	event := logging.Err(err)
	addFields(event, a.fields, fields)
	event.Msg(msg)
}

func (a zerologAdapter) Info(msg string, fields watermill.LogFields) {
	event := logging.Info()
	addFields(event, a.fields, fields)
	event.Msg(msg)
}

func (a zerologAdapter) Debug(msg string, fields watermill.LogFields) {
	event := logging.Debug()
	addFields(event, a.fields, fields)
	event.Msg(msg)
}

func (a zerologAdapter) Trace(msg string, fields watermill.LogFields) {
	event := logging.Debug()
	addFields(event, a.fields, fields)
	event.Msg(msg)
}

func (a zerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return zerologAdapter{fields: a.fields.Add(fields)}
}

func addFields(event *zerolog.Event, groups ...watermill.LogFields) {
	for _, fields := range groups {
		for key, value := range fields {
			event.Interface(key, value)
		}
	}
}
