package slack

import (
	"context"

	"herald/internal"

	slackapi "github.com/slack-go/slack"
)

// Config holds the chat platform API settings.
type Config struct {
	// Token is the bot token used for the Web API.
	Token string
}

// Client implements the chat platform API on top of the official Slack SDK.
type Client struct {
	api *slackapi.Client
}

var _ internal.ChatClient = (*Client)(nil)

func NewClient(cfg Config) *Client {
	return &Client{api: slackapi.New(cfg.Token)}
}

// SendMessage posts a message to a channel name or user id.
func (c *Client) SendMessage(ctx context.Context, target, text string) error {
	_, _, err := c.api.PostMessageContext(ctx, target,
		slackapi.MsgOptionText(text, false),
		slackapi.MsgOptionDisableLinkUnfurl(),
	)
	return err
}

// UserIDByEmail resolves a chat user id from a commit author email.
func (c *Client) UserIDByEmail(ctx context.Context, email string) (string, error) {
	user, err := c.api.GetUserByEmailContext(ctx, email)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// Identity returns the bot's own user id.
func (c *Client) Identity(ctx context.Context) (string, error) {
	resp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return "", err
	}
	return resp.UserID, nil
}

// Unfurl submits link previews for a message, keyed by link URL.
func (c *Client) Unfurl(ctx context.Context, channel, timestamp string, previews map[string]internal.Preview) error {
	unfurls := make(map[string]slackapi.Attachment, len(previews))
	for url, preview := range previews {
		unfurls[url] = slackapi.Attachment{
			Title:     preview.Title,
			TitleLink: preview.TitleLink,
			Text:      preview.Text,
			Footer:    preview.Footer,
		}
	}
	_, _, _, err := c.api.UnfurlMessageContext(ctx, channel, timestamp, unfurls)
	return err
}
