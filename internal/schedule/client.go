package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/generativelanguage/v1beta"
	"google.golang.org/api/option"

	appLog "dashcal/internal/log"
	"dashcal/internal/model"
)

const (
	DefaultModel   = "gemini-2.5-flash"
	DefaultTimeout = 30 * time.Second
)

var (
	// ErrNoCredential is logged when generation is attempted without an API
	// key. It is never returned to callers.
	ErrNoCredential = errors.New("schedule: API key is not configured")

	ErrEmptyResponse     = errors.New("schedule: generator returned no content")
	ErrMalformedResponse = errors.New("schedule: generator response is not a JSON array")
	ErrNoValidEvents     = errors.New("schedule: generator returned no valid events")
)

// Config configures a Client.
type Config struct {
	// APIKey for the generative language API. Empty disables generation.
	APIKey string
	// Model name, with or without the "models/" prefix.
	Model string
	// Timeout bounds a single generation call.
	Timeout time.Duration
	// Location is the display zone used for "today" and for timestamps
	// that carry no offset. Nil means time.Local.
	Location *time.Location
}

// Client turns a free-text prompt into calendar events with one
// generateContent call.
type Client struct {
	svc     *generativelanguage.Service
	model   string
	timeout time.Duration
	loc     *time.Location

	now   func() time.Time
	newID func() string
}

// NewClient builds a Client. Extra options are appended after the API key,
// which lets tests point the client at a fake endpoint. With no API key the
// client is built in a disabled state and never touches the network.
func NewClient(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	c := &Client{
		model:   normalizeModel(cfg.Model),
		timeout: cfg.Timeout,
		loc:     cfg.Location,
		now:     time.Now,
		newID:   func() string { return "gen-" + uuid.NewString() },
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.loc == nil {
		c.loc = time.Local
	}

	if cfg.APIKey == "" {
		appLog.Error("schedule generation disabled", ErrNoCredential)
		return c, nil
	}

	all := append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	svc, err := generativelanguage.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("schedule: create generative language service: %w", err)
	}
	c.svc = svc
	return c, nil
}

func normalizeModel(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultModel
	}
	if !strings.HasPrefix(name, "models/") {
		name = "models/" + name
	}
	return name
}

// Enabled reports whether a credential is configured.
func (c *Client) Enabled() bool {
	return c.svc != nil
}

// Generate asks the model for today's schedule described by prompt.
//
// A blank prompt or a missing credential yields (nil, nil) without any
// request. Malformed items are dropped; the call only fails on transport
// errors, an empty or non-array response, or when every item is malformed.
// Every returned event has a fresh id.
func (c *Client) Generate(ctx context.Context, prompt string) ([]model.Event, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, nil
	}
	if c.svc == nil {
		appLog.Error("schedule generation skipped", ErrNoCredential)
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	today := c.now().In(c.loc).Format("2006-01-02")
	req := &generativelanguage.GenerateContentRequest{
		Contents: []*generativelanguage.Content{{
			Role:  "user",
			Parts: []*generativelanguage.Part{{Text: buildPrompt(prompt, today)}},
		}},
		GenerationConfig: &generativelanguage.GenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   responseSchema(),
		},
	}

	started := time.Now()
	resp, err := c.svc.Models.GenerateContent(c.model, req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("schedule: generate content: %w", err)
	}

	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if items == nil {
		return nil, ErrMalformedResponse
	}

	events := make([]model.Event, 0, len(items))
	for _, entry := range Classify(items, c.loc) {
		switch e := entry.(type) {
		case ValidEvent:
			ev := e.Event
			ev.ID = c.newID()
			events = append(events, ev)
		case MalformedEntry:
			appLog.Debug("dropping malformed schedule entry", "index", e.Index, "reason", e.Reason)
		}
	}

	if len(items) > 0 && len(events) == 0 {
		return nil, ErrNoValidEvents
	}

	appLog.Info("schedule generated",
		"model", c.model,
		"items", len(items),
		"events", len(events),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return events, nil
}

func buildPrompt(request, today string) string {
	return fmt.Sprintf(`Generate a realistic daily schedule based on this request: %q.
Assume today is %s. Return a list of events with realistic start and end times for today.
Ensure times are in ISO 8601 format (e.g., %sT09:00:00).`, request, today, today)
}

func responseSchema() *generativelanguage.Schema {
	types := make([]string, 0, len(model.KnownTypes))
	for _, t := range model.KnownTypes {
		types = append(types, string(t))
	}

	return &generativelanguage.Schema{
		Type: "ARRAY",
		Items: &generativelanguage.Schema{
			Type: "OBJECT",
			Properties: map[string]generativelanguage.Schema{
				"title":       {Type: "STRING", Description: "Short title of the event"},
				"start":       {Type: "STRING", Description: "Start time in ISO format"},
				"end":         {Type: "STRING", Description: "End time in ISO format"},
				"description": {Type: "STRING", Description: "Short description"},
				"type":        {Type: "STRING", Enum: types},
			},
			Required: []string{"title", "start", "end", "type"},
		},
	}
}

// responseText joins the text parts of the first candidate.
func responseText(resp *generativelanguage.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range cand.Content.Parts {
		if p != nil {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
