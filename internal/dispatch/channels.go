package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/moolen/vigil/internal/logging"
	"github.com/moolen/vigil/internal/risk"
)

const defaultChannelTimeout = 15 * time.Second

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultChannelTimeout
	}
	return &http.Client{Timeout: timeout}
}

// postJSON sends a JSON body and classifies any failure.
func postJSON(ctx context.Context, client *http.Client, channel, url string, body interface{}, decorate func(*http.Request)) error {
	data, err := json.Marshal(body)
	if err != nil {
		return &DispatchError{Channel: channel, Classification: ClassPermanent, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return &DispatchError{Channel: channel, Classification: ClassPermanent, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if decorate != nil {
		decorate(req)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &DispatchError{Channel: channel, Classification: ClassTransient, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return &DispatchError{
			Channel:        channel,
			Classification: classifyStatus(resp.StatusCode),
			Err:            fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	return nil
}

// AlertChannel notifies the retention team via a webhook.
type AlertChannel struct {
	url    string
	client *http.Client
	logger *logging.Logger
}

// NewAlertChannel creates an alert channel posting to the given webhook URL.
func NewAlertChannel(url string, timeout time.Duration) *AlertChannel {
	return &AlertChannel{
		url:    url,
		client: newHTTPClient(timeout),
		logger: logging.GetLogger("dispatch.alert"),
	}
}

// Deliver posts a compact alert message to the webhook.
func (c *AlertChannel) Deliver(ctx context.Context, payload Payload) error {
	body := map[string]interface{}{
		"text": fmt.Sprintf("Churn risk: customer %s (%s urgency, cause: %s) - %s",
			payload.Customer.ID, payload.Decision.Urgency,
			payload.Analysis.PrimaryCause, payload.Decision.Rationale),
		"customer_id":    payload.Customer.ID,
		"urgency":        payload.Decision.Urgency,
		"correlation_id": payload.CorrelationID,
	}
	if err := postJSON(ctx, c.client, c.Name(), c.url, body, nil); err != nil {
		return err
	}
	c.logger.Debug("alert delivered for customer %s", payload.Customer.ID)
	return nil
}

// Name implements Channel.Name.
func (c *AlertChannel) Name() string {
	return "alert"
}

// TicketChannel opens a case in the ticketing system.
type TicketChannel struct {
	baseURL    string
	projectKey string
	username   string
	apiToken   string
	client     *http.Client
	logger     *logging.Logger
}

// NewTicketChannel creates a ticket channel against a Jira-style REST API.
func NewTicketChannel(baseURL, projectKey, username, apiToken string, timeout time.Duration) *TicketChannel {
	return &TicketChannel{
		baseURL:    baseURL,
		projectKey: projectKey,
		username:   username,
		apiToken:   apiToken,
		client:     newHTTPClient(timeout),
		logger:     logging.GetLogger("dispatch.ticket"),
	}
}

// ticketPriority maps urgency onto the ticketing system's priority names.
func ticketPriority(u risk.Urgency) string {
	switch u {
	case risk.UrgencyCritical:
		return "Highest"
	case risk.UrgencyHigh:
		return "High"
	case risk.UrgencyMedium:
		return "Medium"
	default:
		return "Low"
	}
}

// Deliver creates an issue describing the at-risk customer.
func (c *TicketChannel) Deliver(ctx context.Context, payload Payload) error {
	body := map[string]interface{}{
		"fields": map[string]interface{}{
			"project":   map[string]string{"key": c.projectKey},
			"issuetype": map[string]string{"name": "Task"},
			"priority":  map[string]string{"name": ticketPriority(payload.Decision.Urgency)},
			"summary": fmt.Sprintf("Churn risk: customer %s (%s)",
				payload.Customer.ID, payload.Analysis.PrimaryCause),
			"description": fmt.Sprintf("%s\n\nRationale: %s\nCorrelation: %s",
				payload.Analysis.Summary, payload.Decision.Rationale, payload.CorrelationID),
		},
	}
	decorate := func(req *http.Request) {
		req.SetBasicAuth(c.username, c.apiToken)
	}
	if err := postJSON(ctx, c.client, c.Name(), c.baseURL+"/rest/api/2/issue", body, decorate); err != nil {
		return err
	}
	c.logger.Debug("ticket created for customer %s", payload.Customer.ID)
	return nil
}

// Name implements Channel.Name.
func (c *TicketChannel) Name() string {
	return "ticket"
}

// OutreachChannel contacts the customer directly through the mail service.
type OutreachChannel struct {
	url       string
	apiKey    string
	fromEmail string
	client    *http.Client
	logger    *logging.Logger
}

// NewOutreachChannel creates an outreach channel against the mail API.
func NewOutreachChannel(url, apiKey, fromEmail string, timeout time.Duration) *OutreachChannel {
	return &OutreachChannel{
		url:       url,
		apiKey:    apiKey,
		fromEmail: fromEmail,
		client:    newHTTPClient(timeout),
		logger:    logging.GetLogger("dispatch.outreach"),
	}
}

// Deliver sends a retention email to the customer. Customers without an
// email address on file cannot be reached; that is a permanent failure.
func (c *OutreachChannel) Deliver(ctx context.Context, payload Payload) error {
	if payload.Customer.Email == "" {
		return &DispatchError{
			Channel:        c.Name(),
			Classification: ClassPermanent,
			Err:            fmt.Errorf("customer %s has no email address", payload.Customer.ID),
		}
	}

	body := map[string]interface{}{
		"from":    c.fromEmail,
		"to":      payload.Customer.Email,
		"subject": "We'd love to hear from you",
		"body": fmt.Sprintf("Hi,\n\nwe noticed you might be getting less out of your subscription lately. %s\n\nReply to this email and we'll help.",
			payload.Decision.Rationale),
		"metadata": map[string]string{
			"customer_id":    payload.Customer.ID,
			"correlation_id": payload.CorrelationID,
		},
	}
	decorate := func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if err := postJSON(ctx, c.client, c.Name(), c.url, body, decorate); err != nil {
		return err
	}
	c.logger.Debug("outreach email sent to customer %s", payload.Customer.ID)
	return nil
}

// Name implements Channel.Name.
func (c *OutreachChannel) Name() string {
	return "outreach"
}
