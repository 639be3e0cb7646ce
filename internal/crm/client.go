// Package crm is a typed HTTP client for the external CRM/BaaS API that owns
// all roofing-business records: leads, inspections, bookings, contacts,
// properties and recurring availability rules.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const defaultTimeout = 10 * time.Second

// maxErrorBody caps how much of an error response body is kept for messages.
const maxErrorBody = 300

// APIError is a non-2xx response from the CRM.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crm: %d: %s", e.StatusCode, e.Message)
}

// Client talks to the CRM over its three logical base URLs. The split is
// path-prefix only; all three share one bearer token.
type Client struct {
	baseURL     string // general API
	v2URL       string // booking mutations
	contactsURL string // contacts/properties

	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger

	rdb      *redis.Client
	cacheTTL time.Duration

	// lenientSlots re-enables the legacy tolerance for shape-ambiguous
	// availability payloads. Off by default; strict decoding is the contract.
	lenientSlots bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit caps outbound request rate.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithReferenceCache caches slow-moving reference lists (inspection types,
// locations) in Redis. Availability is never cached.
func WithReferenceCache(rdb *redis.Client, ttl time.Duration) Option {
	return func(c *Client) {
		c.rdb = rdb
		c.cacheTTL = ttl
	}
}

// WithLenientSlots accepts the legacy availability payload shapes (bare
// array, data-wrapped, first array-valued key) instead of failing hard.
func WithLenientSlots() Option {
	return func(c *Client) { c.lenientSlots = true }
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient constructs a CRM client. baseURL is required; v2URL and
// contactsURL fall back to baseURL when empty.
func NewClient(baseURL, v2URL, contactsURL, token string, opts ...Option) *Client {
	if v2URL == "" {
		v2URL = baseURL
	}
	if contactsURL == "" {
		contactsURL = baseURL
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		v2URL:       strings.TrimRight(v2URL, "/"),
		contactsURL: strings.TrimRight(contactsURL, "/"),
		token:       token,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateBooking books an inspection slot.
func (c *Client) CreateBooking(ctx context.Context, req CreateBookingRequest) (*Booking, error) {
	var booking Booking
	if err := c.doJSON(ctx, http.MethodPost, c.v2URL+"/inspection_booking", req, &booking); err != nil {
		return nil, err
	}
	if booking.ID == "" {
		return nil, fmt.Errorf("crm: booking response missing id")
	}
	return &booking, nil
}

// CancelInspection cancels an existing booking. A reason is required by the
// upstream API.
func (c *Client) CancelInspection(ctx context.Context, req CancelInspectionRequest) error {
	return c.doJSON(ctx, http.MethodPost, c.v2URL+"/inspection/cancel", req, nil)
}

// RescheduleBooking moves an existing booking to a new slot.
func (c *Client) RescheduleBooking(ctx context.Context, req RescheduleRequest) (*Booking, error) {
	var booking Booking
	if err := c.doJSON(ctx, http.MethodPost, c.v2URL+"/inspection_booking/reschedule", req, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetLead fetches a lead record.
func (c *Client) GetLead(ctx context.Context, id string) (*Lead, error) {
	var lead Lead
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/lead/"+url.PathEscape(id), nil, &lead); err != nil {
		return nil, err
	}
	return &lead, nil
}

// UpdateLead patches fields on a lead record.
func (c *Client) UpdateLead(ctx context.Context, id string, patch map[string]any) error {
	return c.doJSON(ctx, http.MethodPatch, c.baseURL+"/lead/"+url.PathEscape(id), patch, nil)
}

// GetInspection fetches an inspection with its joined booking.
func (c *Client) GetInspection(ctx context.Context, id string) (*Inspection, error) {
	var insp Inspection
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/inspection/"+url.PathEscape(id), nil, &insp); err != nil {
		return nil, err
	}
	return &insp, nil
}

// GetContact fetches a contact record from the contacts API.
func (c *Client) GetContact(ctx context.Context, id string) (*Contact, error) {
	var contact Contact
	if err := c.doJSON(ctx, http.MethodGet, c.contactsURL+"/contact/"+url.PathEscape(id), nil, &contact); err != nil {
		return nil, err
	}
	return &contact, nil
}

// GetProperty fetches a property record from the contacts API.
func (c *Client) GetProperty(ctx context.Context, id string) (*Property, error) {
	var prop Property
	if err := c.doJSON(ctx, http.MethodGet, c.contactsURL+"/property/"+url.PathEscape(id), nil, &prop); err != nil {
		return nil, err
	}
	return &prop, nil
}

// ListInspectionTypes returns the bookable inspection categories.
func (c *Client) ListInspectionTypes(ctx context.Context) ([]InspectionType, error) {
	var types []InspectionType
	if c.readCache(ctx, "inspection_types", &types) {
		return types, nil
	}
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/inspection_type", nil, &types); err != nil {
		return nil, err
	}
	c.writeCache(ctx, "inspection_types", types)
	return types, nil
}

// ListLocations returns the office locations availability can be filtered by.
func (c *Client) ListLocations(ctx context.Context) ([]Location, error) {
	var locations []Location
	if c.readCache(ctx, "locations", &locations) {
		return locations, nil
	}
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/location", nil, &locations); err != nil {
		return nil, err
	}
	c.writeCache(ctx, "locations", locations)
	return locations, nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.rdb == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.rdb.Get(ctx, "crm:"+key).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(val), out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.rdb == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, "crm:"+key, data, c.cacheTTL).Err()
}

// doJSON performs a request with an optional JSON body, decoding the response
// into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	data, err := c.doRaw(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("crm: decode %s %s: %w", method, endpoint, err)
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("crm: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crm: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("crm: read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp, data)}
	}
	return data, nil
}

// errorMessage extracts a human-readable message from an error response:
// the body's "message" or "error" field, falling back to the raw body and
// finally the HTTP status line.
func errorMessage(resp *http.Response, body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return text
	}
	return resp.Status
}
