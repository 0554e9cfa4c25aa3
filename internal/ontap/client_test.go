package ontap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(ts *httptest.Server) *Client {
	return &Client{
		baseURL:    ts.URL + "/api",
		username:   "admin",
		password:   "secret",
		httpClient: ts.Client(),
	}
}

func TestCheckDestinationHealth(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    bool
		wantErr bool
	}{
		{"online", `{"num_records":1,"records":[{"name":"aggr1","state":"online"}]}`, true, false},
		{"offline", `{"num_records":1,"records":[{"name":"aggr1","state":"offline"}]}`, false, false},
		{"not found", `{"num_records":0,"records":[]}`, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/storage/aggregates" {
					t.Errorf("path = %s, want /api/storage/aggregates", r.URL.Path)
				}
				if r.URL.Query().Get("name") != "aggr1" {
					t.Errorf("name param = %q, want aggr1", r.URL.Query().Get("name"))
				}
				w.Write([]byte(tc.body))
			}))
			defer ts.Close()

			got, err := newTestClient(ts).CheckDestinationHealth(context.Background(), "aggr1")
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("healthy = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCheckDestinationHealthServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	if _, err := newTestClient(ts).CheckDestinationHealth(context.Background(), "aggr1"); err == nil {
		t.Error("expected error for HTTP 500")
	}
}

func TestStartMove(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/api/storage/volume-moves" {
			t.Errorf("%s %s, want POST /api/storage/volume-moves", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			t.Errorf("BasicAuth = (%q, %q, %v), want (admin, secret, true)", user, pass, ok)
		}

		var payload struct {
			Volume struct {
				Name string `json:"name"`
			} `json:"volume"`
			DestinationAggregate struct {
				Name string `json:"name"`
			} `json:"destination_aggregate"`
			CutoverAction string `json:"cutover_action"`
			CutoverWindow int    `json:"cutover_window"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decoding payload: %v", err)
		}
		if payload.Volume.Name != "vol1" || payload.DestinationAggregate.Name != "aggr_dst" {
			t.Errorf("payload = %+v", payload)
		}
		if payload.CutoverAction != "defer" || payload.CutoverWindow != 45 {
			t.Errorf("cutover = %s/%d, want defer/45", payload.CutoverAction, payload.CutoverWindow)
		}

		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"job":{"uuid":"abc-123"}}`))
	}))
	defer ts.Close()

	handle, err := newTestClient(ts).StartMove(context.Background(), "vol1", "aggr_dst",
		MoveOptions{CutoverAction: "defer", CutoverWindow: 45})
	if err != nil {
		t.Fatalf("StartMove returned error: %v", err)
	}
	if handle != "abc-123" {
		t.Errorf("handle = %q, want abc-123", handle)
	}
}

func TestStartMoveNoJobUUID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	if _, err := newTestClient(ts).StartMove(context.Background(), "vol1", "aggr_dst", MoveOptions{}); err == nil {
		t.Error("expected error when response carries no job uuid")
	}
}

func TestPollJob(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/cluster/jobs/abc-123" {
			t.Errorf("path = %s, want /api/cluster/jobs/abc-123", r.URL.Path)
		}
		w.Write([]byte(`{"uuid":"abc-123","state":"running","progress":{"percent_complete":57}}`))
	}))
	defer ts.Close()

	state, percent, err := newTestClient(ts).PollJob(context.Background(), "abc-123")
	if err != nil {
		t.Fatalf("PollJob returned error: %v", err)
	}
	if state != "running" || percent != 57 {
		t.Errorf("state=%q percent=%d, want running/57", state, percent)
	}
}

func TestPollJobNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	if _, _, err := newTestClient(ts).PollJob(context.Background(), "gone"); err == nil {
		t.Error("expected error for HTTP 404")
	}
}

func TestListInFlight(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/storage/volume-moves" {
			t.Errorf("path = %s, want /api/storage/volume-moves", r.URL.Path)
		}
		w.Write([]byte(`{"num_records":2,"records":[
			{"volume":{"name":"vol1"},"destination_aggregate":{"name":"aggr_dst"},"state":"healthy","percent_complete":80},
			{"volume":{"name":"vol2"},"destination_aggregate":{"name":"aggr_other"},"state":"cutover","percent_complete":99}
		]}`))
	}))
	defer ts.Close()

	moves, err := newTestClient(ts).ListInFlight(context.Background())
	if err != nil {
		t.Fatalf("ListInFlight returned error: %v", err)
	}
	if len(moves) != 2 {
		t.Fatalf("got %d moves, want 2", len(moves))
	}
	if moves[0].Volume != "vol1" || moves[0].Percent != 80 {
		t.Errorf("moves[0] = %+v", moves[0])
	}
	if moves[1].DestinationAggregate != "aggr_other" || moves[1].State != "cutover" {
		t.Errorf("moves[1] = %+v", moves[1])
	}
}
