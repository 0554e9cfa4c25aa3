package ontap

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	connectTimeout = 30 * time.Second
	readTimeout    = 60 * time.Second
)

// Client talks to the ONTAP REST API with basic auth.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// NewClient creates a REST client for a cluster connection.
func NewClient(conn Connection) *Client {
	transport := &http.Transport{
		ResponseHeaderTimeout: readTimeout,
	}
	if conn.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Client{
		baseURL:  fmt.Sprintf("https://%s/api", conn.Cluster),
		username: conn.Username,
		password: conn.Password,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   connectTimeout + readTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Re-apply basic auth on redirects
				if len(via) > 0 {
					req.SetBasicAuth(conn.Username, conn.Password)
				}
				return nil
			},
		},
	}
}

// recordsResponse is the standard ONTAP collection envelope.
type recordsResponse struct {
	NumRecords int               `json:"num_records"`
	Records    []json.RawMessage `json:"records"`
}

// get performs an authenticated GET and unmarshals the response into dest.
func (c *Client) get(ctx context.Context, path string, params url.Values, dest interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("GET %s: HTTP %d: %s", path, resp.StatusCode, truncate(string(body), 200))
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// post performs an authenticated POST with a JSON body and unmarshals the
// response into dest.
func (c *Client) post(ctx context.Context, path string, payload, dest interface{}) error {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshaling body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s: HTTP %d: %s", path, resp.StatusCode, truncate(string(body), 200))
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// Ping checks connectivity and credentials by hitting the cluster endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.get(ctx, "/cluster", nil, nil)
}

// CheckDestinationHealth looks up the aggregate and reports whether it is
// online. An aggregate that does not exist is unhealthy, not an error.
func (c *Client) CheckDestinationHealth(ctx context.Context, aggregate string) (bool, error) {
	var page recordsResponse
	params := url.Values{
		"name":   {aggregate},
		"fields": {"name,state"},
	}
	if err := c.get(ctx, "/storage/aggregates", params, &page); err != nil {
		return false, err
	}
	if len(page.Records) == 0 {
		return false, nil
	}
	var rec struct {
		Name  string `json:"name"`
		State string `json:"state"`
	}
	if err := json.Unmarshal(page.Records[0], &rec); err != nil {
		return false, fmt.Errorf("parsing aggregate record: %w", err)
	}
	return rec.State == "online", nil
}

// StartMove initiates a volume move via POST /storage/volume-moves. The
// cluster responds with the async job that tracks the move.
func (c *Client) StartMove(ctx context.Context, volume, aggregate string, opts MoveOptions) (JobHandle, error) {
	payload := map[string]interface{}{
		"volume":                map[string]string{"name": volume},
		"destination_aggregate": map[string]string{"name": aggregate},
		"cutover_action":        opts.CutoverAction,
		"cutover_window":        opts.CutoverWindow,
	}
	var resp struct {
		Job struct {
			UUID string `json:"uuid"`
		} `json:"job"`
	}
	if err := c.post(ctx, "/storage/volume-moves", payload, &resp); err != nil {
		return "", err
	}
	if resp.Job.UUID == "" {
		return "", fmt.Errorf("start move for %s: no job uuid in response", volume)
	}
	return JobHandle(resp.Job.UUID), nil
}

// PollJob fetches the job record for a move and returns its state string
// and percent complete.
func (c *Client) PollJob(ctx context.Context, handle JobHandle) (string, int, error) {
	var rec struct {
		State    string `json:"state"`
		Message  string `json:"message"`
		Progress struct {
			PercentComplete int `json:"percent_complete"`
		} `json:"progress"`
	}
	if err := c.get(ctx, "/cluster/jobs/"+url.PathEscape(string(handle)), nil, &rec); err != nil {
		return "", 0, err
	}
	return rec.State, rec.Progress.PercentComplete, nil
}

// ListInFlight returns all volume moves currently running on the cluster.
func (c *Client) ListInFlight(ctx context.Context) ([]InFlightMove, error) {
	var page recordsResponse
	params := url.Values{
		"fields": {"volume,destination_aggregate,state,percent_complete"},
	}
	if err := c.get(ctx, "/storage/volume-moves", params, &page); err != nil {
		return nil, err
	}
	moves := make([]InFlightMove, 0, len(page.Records))
	for _, raw := range page.Records {
		var rec struct {
			Volume struct {
				Name string `json:"name"`
			} `json:"volume"`
			DestinationAggregate struct {
				Name string `json:"name"`
			} `json:"destination_aggregate"`
			State           string `json:"state"`
			PercentComplete int    `json:"percent_complete"`
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("parsing volume move record: %w", err)
		}
		moves = append(moves, InFlightMove{
			Volume:               rec.Volume.Name,
			DestinationAggregate: rec.DestinationAggregate.Name,
			State:                rec.State,
			Percent:              rec.PercentComplete,
		})
	}
	return moves, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
