package stealthwatch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/CiscoSE/MaxmindAsnImporter/internal/config"
	"github.com/CiscoSE/MaxmindAsnImporter/internal/util"
)

// ErrAuthFailed indicates the SMC rejected the configured credentials.
var ErrAuthFailed = errors.New("stealthwatch authentication rejected")

// Tenant is one Stealthwatch domain as returned by the reporting API.
type Tenant struct {
	ID   int    `json:"id"`
	Name string `json:"displayName"`
}

// TagSummary is one entry of the tag listing. The listing does not carry the
// parent id; callers needing the parent scope must fetch the detail.
type TagSummary struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// TagDetail is the full tag record, including its parent scope and member
// ranges.
type TagDetail struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	ParentID int      `json:"parentId"`
	Ranges   []string `json:"ranges"`
}

// Options configures the HTTP behavior of the client.
type Options struct {
	HTTP        config.HTTPConfig
	InsecureTLS bool

	// RequestsPerSecond throttles calls against the SMC so a large search
	// configuration cannot hammer the appliance. Zero means the default.
	RequestsPerSecond float64
}

// Client is an authenticated session against a Stealthwatch Management
// Console. All operations are synchronous request/response; the session
// cookie obtained by Login is carried in the jar.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tenantID   int
	limiter    *rate.Limiter
	details    *gocache.Cache
}

// NewClient creates an unauthenticated client. Login must be called before
// any other operation.
func NewClient(opts Options) *Client {
	jar, _ := cookiejar.New(nil)

	transport := &http.Transport{
		Proxy: util.ProxyFunc(opts.HTTP),
	}
	if opts.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	timeout := time.Duration(opts.HTTP.Timeout)
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Jar:       jar,
			Transport: transport,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 5),
		details: gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// Login authenticates against the SMC at addr (IP or FQDN, no scheme) and
// stores the session cookie for subsequent calls.
func (c *Client) Login(ctx context.Context, addr, username, password string) error {
	c.baseURL = "https://" + strings.TrimSuffix(addr, "/")

	form := url.Values{
		"username": {username},
		"password": {password},
	}

	resp, err := c.do(ctx, http.MethodPost, "/token/v2/authenticate",
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer drain(resp)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		log.Debug("authenticated to Stealthwatch", "address", addr, "user", username)
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuthFailed, resp.StatusCode)
	default:
		return fmt.Errorf("login: unexpected status: %d %s", resp.StatusCode, resp.Status)
	}
}

// Tenants lists the Stealthwatch domains visible to the session.
func (c *Client) Tenants(ctx context.Context) ([]Tenant, error) {
	resp, err := c.do(ctx, http.MethodGet, "/sw-reporting/v1/tenants", nil, "")
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer drain(resp)

	var out struct {
		Data []Tenant `json:"data"`
	}
	if err := decode(resp, &out); err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return out.Data, nil
}

// SetTenant selects the Stealthwatch domain subsequent tag operations apply to.
func (c *Client) SetTenant(id int) { c.tenantID = id }

// TenantID returns the currently selected domain.
func (c *Client) TenantID() int { return c.tenantID }

// Tags lists all tags (host groups) of the selected tenant. Only id and name
// are populated; parent scope requires a Tag detail fetch.
func (c *Client) Tags(ctx context.Context) ([]TagSummary, error) {
	resp, err := c.do(ctx, http.MethodGet, c.tagsPath(), nil, "")
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer drain(resp)

	var out struct {
		Data []TagSummary `json:"data"`
	}
	if err := decode(resp, &out); err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return out.Data, nil
}

// Tag fetches one tag's detail. Results are cached for the duration of a
// reconciliation pass, so repeated lookups of the same tag id cost one
// request.
func (c *Client) Tag(ctx context.Context, id int) (*TagDetail, error) {
	key := strconv.Itoa(id)
	if cached, found := c.details.Get(key); found {
		detail := cached.(TagDetail)
		return &detail, nil
	}

	resp, err := c.do(ctx, http.MethodGet, c.tagsPath()+"/"+key, nil, "")
	if err != nil {
		return nil, fmt.Errorf("get tag %d: %w", id, err)
	}
	defer drain(resp)

	var out struct {
		Data TagDetail `json:"data"`
	}
	if err := decode(resp, &out); err != nil {
		return nil, fmt.Errorf("get tag %d: %w", id, err)
	}

	c.details.Set(key, out.Data, gocache.DefaultExpiration)
	return &out.Data, nil
}

type tagPayload struct {
	ID       int      `json:"id,omitempty"`
	Name     string   `json:"name"`
	ParentID int      `json:"parentId"`
	Ranges   []string `json:"ranges"`
}

// CreateTag creates a tag named name under parentID with the given member
// ranges and returns its detail.
func (c *Client) CreateTag(ctx context.Context, parentID int, name string, ranges []string) (*TagDetail, error) {
	body, err := json.Marshal([]tagPayload{{
		Name:     name,
		ParentID: parentID,
		Ranges:   nonNil(ranges),
	}})
	if err != nil {
		return nil, fmt.Errorf("create tag %q: %w", name, err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.tagsPath(), bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, fmt.Errorf("create tag %q: %w", name, err)
	}
	defer drain(resp)

	var out struct {
		Data []TagDetail `json:"data"`
	}
	if err := decode(resp, &out); err != nil {
		return nil, fmt.Errorf("create tag %q: %w", name, err)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("create tag %q: empty response", name)
	}
	return &out.Data[0], nil
}

// UpdateTag replaces the tag's name and member ranges. Replacement is full,
// not incremental: the remote membership becomes exactly ranges.
func (c *Client) UpdateTag(ctx context.Context, parentID, id int, name string, ranges []string) (*TagDetail, error) {
	body, err := json.Marshal([]tagPayload{{
		ID:       id,
		Name:     name,
		ParentID: parentID,
		Ranges:   nonNil(ranges),
	}})
	if err != nil {
		return nil, fmt.Errorf("update tag %d: %w", id, err)
	}

	resp, err := c.do(ctx, http.MethodPut, c.tagsPath(), bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, fmt.Errorf("update tag %d: %w", id, err)
	}
	defer drain(resp)

	var out struct {
		Data []TagDetail `json:"data"`
	}
	if err := decode(resp, &out); err != nil {
		return nil, fmt.Errorf("update tag %d: %w", id, err)
	}
	c.details.Delete(strconv.Itoa(id))
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("update tag %d: empty response", id)
	}
	return &out.Data[0], nil
}

func (c *Client) tagsPath() string {
	return "/smc-configuration/rest/v1/tenants/" + strconv.Itoa(c.tenantID) + "/tags"
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	if c.baseURL == "" {
		return nil, errors.New("not logged in")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	return resp, nil
}

// decode checks the status and unmarshals the JSON body into v.
func decode(resp *http.Response, v interface{}) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// drain consumes and closes the body so the connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func nonNil(ranges []string) []string {
	if ranges == nil {
		return []string{}
	}
	return ranges
}
