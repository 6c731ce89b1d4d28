package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
)

// SlackPoster is the part of the Slack API client used here.
type SlackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackNotifier posts flagged-visit alerts to a channel.
type SlackNotifier struct {
	client  SlackPoster
	channel string
}

func NewSlackNotifier(token, channel string, options ...slack.Option) *SlackNotifier {
	return &SlackNotifier{client: slack.New(token, options...), channel: channel}
}

func (s *SlackNotifier) Notify(ctx context.Context, v FlaggedVisit) error {
	subject, body := Message(v)
	text := "*" + subject + "*\n" + body
	if names := recipientNames(v.Recipients); names != "" {
		text += "\nNotified: " + names
	}
	_, _, err := s.client.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("failed to post message to Slack: %w", err)
	}
	return nil
}

func recipientNames(rs []Recipient) string {
	var names []string
	for _, r := range rs {
		if r.Name != "" {
			names = append(names, r.Name)
		} else if r.Email != "" {
			names = append(names, r.Email)
		}
	}
	return strings.Join(names, ", ")
}
