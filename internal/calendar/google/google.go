// Package google implements calendar.Calendar on top of the Google Calendar API.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/javiermolinar/studyplanner/internal/calendar"
	"github.com/javiermolinar/studyplanner/internal/profile"
)

// Config holds the client settings.
type Config struct {
	CredentialsFile string
	CalendarID      string
	// EventTimezone is the IANA zone stamped on created events. Empty lets Google infer it.
	EventTimezone string
	Timeout       time.Duration
	RatePerSec    int
}

// TokenStore persists refreshed OAuth tokens.
type TokenStore interface {
	SetCalendarToken(ctx context.Context, userID int64, token string) error
}

// Provider builds per-user Google Calendar clients.
type Provider struct {
	oauth   *oauth2.Config
	cfg     Config
	tokens  TokenStore
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewProvider reads the OAuth client credentials and returns a Provider.
func NewProvider(cfg Config, tokens TokenStore, log zerolog.Logger) (*Provider, error) {
	creds, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading credentials: %w", err)
	}
	oc, err := googleoauth.ConfigFromJSON(creds, gcal.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}
	return newProvider(oc, cfg, tokens, log), nil
}

func newProvider(oc *oauth2.Config, cfg Config, tokens TokenStore, log zerolog.Logger) *Provider {
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	return &Provider{
		oauth:   oc,
		cfg:     cfg,
		tokens:  tokens,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log.With().Str("component", "google_calendar").Logger(),
	}
}

// ErrInvalidToken reports a token file that cannot be used for linking.
var ErrInvalidToken = errors.New("invalid calendar token")

// ParseToken validates a token obtained outside the planner and returns it
// in the stored form. A token without a refresh token cannot outlive its
// first expiry and is rejected.
func ParseToken(raw []byte) (string, error) {
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if tok.RefreshToken == "" {
		return "", fmt.Errorf("%w: missing refresh_token", ErrInvalidToken)
	}
	out, err := json.Marshal(&tok)
	if err != nil {
		return "", fmt.Errorf("encoding token: %w", err)
	}
	return string(out), nil
}

// ForUser returns a client bound to the user's stored token.
func (p *Provider) ForUser(ctx context.Context, u *profile.User) (calendar.Calendar, error) {
	if !u.HasCalendar() {
		return nil, calendar.ErrNotLinked
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(u.CalendarToken), &tok); err != nil {
		return nil, fmt.Errorf("%w: decoding stored token: %v", calendar.ErrAuthExpired, err)
	}

	src := &persistingSource{
		base:   p.oauth.TokenSource(context.WithoutCancel(ctx), &tok),
		last:   tok.AccessToken,
		userID: u.ID,
		store:  p.tokens,
		log:    p.log,
	}
	httpClient := oauth2.NewClient(context.WithoutCancel(ctx), oauth2.ReuseTokenSource(&tok, src))

	c, err := p.client(ctx, httpClient)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (p *Provider) client(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: creating service: %v", calendar.ErrUnavailable, err)
	}
	return &Client{
		svc:        svc,
		calendarID: p.cfg.CalendarID,
		timezone:   p.cfg.EventTimezone,
		timeout:    p.cfg.Timeout,
		limiter:    p.limiter,
	}, nil
}

// Close is a lifecycle hook; the provider holds no connections.
func (p *Provider) Close() error { return nil }

// persistingSource writes refreshed tokens back to the store.
type persistingSource struct {
	base   oauth2.TokenSource
	userID int64
	store  TokenStore
	log    zerolog.Logger

	mu   sync.Mutex
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken == s.last || s.store == nil {
		return tok, nil
	}
	s.last = tok.AccessToken

	raw, err := json.Marshal(tok)
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", s.userID).Msg("encoding refreshed token")
		return tok, nil
	}
	if err := s.store.SetCalendarToken(context.Background(), s.userID, string(raw)); err != nil {
		s.log.Warn().Err(err).Int64("user_id", s.userID).Msg("persisting refreshed token")
	}
	return tok, nil
}

// Client is a Google Calendar bound to one user.
type Client struct {
	svc        *gcal.Service
	calendarID string
	timezone   string
	timeout    time.Duration
	limiter    *rate.Limiter
}

// call runs fn under the rate limiter and the per-call timeout.
func (c *Client) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", calendar.ErrUnavailable, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// ListEvents returns events overlapping [timeMin, timeMax) with recurrences expanded.
func (c *Client) ListEvents(ctx context.Context, timeMin, timeMax time.Time) ([]calendar.Event, error) {
	var out []calendar.Event
	err := c.call(ctx, func(ctx context.Context) error {
		out = out[:0]
		return c.svc.Events.List(c.calendarID).
			TimeMin(timeMin.Format(time.RFC3339)).
			TimeMax(timeMax.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			Context(ctx).
			Pages(ctx, func(page *gcal.Events) error {
				for _, item := range page.Items {
					if item.Status == "cancelled" {
						continue
					}
					e, err := convertEvent(item)
					if err != nil {
						return err
					}
					out = append(out, e)
				}
				return nil
			})
	})
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return out, nil
}

// CreateEvent inserts a timed event.
func (c *Client) CreateEvent(ctx context.Context, in calendar.EventInput) (string, error) {
	ev := &gcal.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Start:       c.dateTime(in.Start),
		End:         c.dateTime(in.End),
	}
	var id string
	err := c.call(ctx, func(ctx context.Context) error {
		created, err := c.svc.Events.Insert(c.calendarID, ev).Context(ctx).Do()
		if err != nil {
			return err
		}
		id = created.Id
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("creating event: %w", err)
	}
	return id, nil
}

// UpdateEvent patches the event's times and, when given, its title.
func (c *Client) UpdateEvent(ctx context.Context, id string, start, end time.Time, summary string) error {
	patch := &gcal.Event{Start: c.dateTime(start), End: c.dateTime(end)}
	if summary != "" {
		patch.Summary = summary
	}
	err := c.call(ctx, func(ctx context.Context) error {
		_, err := c.svc.Events.Patch(c.calendarID, id, patch).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("updating event %s: %w", id, err)
	}
	return nil
}

// DeleteEvent removes an event.
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	err := c.call(ctx, func(ctx context.Context) error {
		return c.svc.Events.Delete(c.calendarID, id).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("deleting event %s: %w", id, err)
	}
	return nil
}

func (c *Client) dateTime(t time.Time) *gcal.EventDateTime {
	return &gcal.EventDateTime{DateTime: t.Format(time.RFC3339), TimeZone: c.timezone}
}

// convertEvent maps a Google event. Date-only boundaries mark all-day events.
func convertEvent(item *gcal.Event) (calendar.Event, error) {
	e := calendar.Event{ID: item.Id, Title: item.Summary}
	if item.Start == nil {
		return e, fmt.Errorf("event %s has no start", item.Id)
	}
	if item.Start.DateTime == "" {
		e.AllDay = true
		e.StartDate = item.Start.Date
		if item.End != nil {
			e.EndDate = item.End.Date
		}
		return e, nil
	}

	start, err := time.Parse(time.RFC3339, item.Start.DateTime)
	if err != nil {
		return e, fmt.Errorf("parsing start of %s: %w", item.Id, err)
	}
	e.Start = start
	e.End = start
	if item.End != nil && item.End.DateTime != "" {
		end, err := time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			return e, fmt.Errorf("parsing end of %s: %w", item.Id, err)
		}
		e.End = end
	}
	return e, nil
}

// classify maps transport errors onto the calendar error kinds.
func classify(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: %v", calendar.ErrAuthExpired, err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%w: %v", calendar.ErrAuthExpired, err)
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"expired", "revoked", "invalid_grant"} {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %v", calendar.ErrAuthExpired, err)
		}
	}
	return fmt.Errorf("%w: %v", calendar.ErrUnavailable, err)
}
