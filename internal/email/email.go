package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
)

const postmarkURL = "https://api.postmarkapp.com/email"

type Client struct {
	serverToken string
	fromEmail   string
	apiURL      string
	httpClient  *http.Client
	logger      *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithAPIURL overrides the Postmark endpoint, used by tests.
func WithAPIURL(url string) Option {
	return func(cl *Client) {
		cl.apiURL = url
	}
}

func NewClient(serverToken, fromEmail string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		apiURL:      postmarkURL,
		httpClient:  http.DefaultClient,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set. When unconfigured,
// sends become logged no-ops instead of errors.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// SendReport delivers a market gap report to the given address. An optional
// personal message is prepended above the report body.
func (c *Client) SendReport(toEmail, message, reportHTML string) error {
	subject := "Your Unbuilt market gap report"
	htmlBody := reportHTML
	if message != "" {
		// The personal message is user input; the report itself is rendered
		// from an escaping template.
		htmlBody = fmt.Sprintf("<p>%s</p><hr>%s", html.EscapeString(message), reportHTML)
	}
	return c.send(postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: "Your market gap report is attached as HTML. Open this email in an HTML-capable client.",
	})
}

// SendPasswordReset emails a reset link containing the signed token.
func (c *Client) SendPasswordReset(toEmail, resetURL string) error {
	return c.send(postmarkEmail{
		From:    c.fromEmail,
		To:      toEmail,
		Subject: "Reset your Unbuilt password",
		HtmlBody: fmt.Sprintf(
			`<p>Click the link below to reset your password:</p><p><a href="%s">Reset password</a></p><p>This link expires in 1 hour.</p>`,
			resetURL,
		),
		TextBody: fmt.Sprintf("Reset your password using this link (expires in 1 hour):\n\n%s", resetURL),
	})
}

func (c *Client) send(payload postmarkEmail) error {
	if !c.Configured() {
		c.logger.Info("email client not configured, skipping send", "to", payload.To, "subject", payload.Subject)
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequest("POST", c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
