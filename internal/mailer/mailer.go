// Package mailer hands outgoing mail to a delivery backend.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// OutboxKey is the Redis list an external mail worker consumes.
const OutboxKey = "mail:outbox"

// Message is a single outgoing email.
type Message struct {
	From     string    `json:"from"`
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	Text     string    `json:"text"`
	HTML     string    `json:"html"`
	Template string    `json:"template,omitempty"`
	QueuedAt time.Time `json:"queuedAt"`
}

// Dispatcher delivers messages.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// RedisOutbox queues messages on a Redis list.
type RedisOutbox struct {
	client redis.Cmdable
	key    string
	now    func() time.Time
}

// NewRedisOutbox returns a dispatcher that LPUSHes onto OutboxKey.
func NewRedisOutbox(client redis.Cmdable) *RedisOutbox {
	return &RedisOutbox{client: client, key: OutboxKey, now: time.Now}
}

func (o *RedisOutbox) Send(ctx context.Context, msg Message) error {
	if msg.QueuedAt.IsZero() {
		msg.QueuedAt = o.now().UTC()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode mail to %s: %w", msg.To, err)
	}
	if err := o.client.LPush(ctx, o.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to queue mail to %s: %w", msg.To, err)
	}
	return nil
}

// LogDispatcher writes messages to the log instead of delivering them.
type LogDispatcher struct {
	log zerolog.Logger
}

// NewLogDispatcher returns a dispatcher for environments without Redis.
func NewLogDispatcher(log zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Send(_ context.Context, msg Message) error {
	d.log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("template", msg.Template).
		Str("body", msg.Text).
		Msg("mail not delivered, no transport configured")
	return nil
}

var resetHTML = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif;">
<p>Hi {{.Name}},</p>
<p>We have received a request to reset your password.</p>
<p>To reset your password click on the following button:</p>
<p><a href="{{.Link}}" style="background:#DC17CB;color:#fff;padding:10px 16px;text-decoration:none;border-radius:4px;">Reset Password</a></p>
<p>The link expires in {{.TTL}}.</p>
<p>Need help, or have questions? Just reply to this email.</p>
</body>
</html>
`))

// PasswordResetMessage builds the reset email for a user.
func PasswordResetMessage(from, to, name, link string, ttl time.Duration) (Message, error) {
	data := struct {
		Name string
		Link string
		TTL  string
	}{Name: name, Link: link, TTL: ttl.String()}

	var html bytes.Buffer
	if err := resetHTML.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("failed to render reset mail: %w", err)
	}

	text := fmt.Sprintf("Hi %s,\n\nWe have received a request to reset your password.\n"+
		"Open the following link to choose a new one:\n\n%s\n\nThe link expires in %s.\n",
		name, link, ttl)

	return Message{
		From:     from,
		To:       to,
		Subject:  "Reset your password",
		Text:     text,
		HTML:     html.String(),
		Template: "password-reset",
	}, nil
}
