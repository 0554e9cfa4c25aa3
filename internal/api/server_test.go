package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jehertzi/netapp-eng-vol-moves/internal/scheduler"
)

func testServer() *Server {
	return &Server{
		Snapshot: func() scheduler.Snapshot {
			return scheduler.Snapshot{
				RunID:   "run-1",
				Total:   4,
				Pending: 1,
				Active: []scheduler.JobStatus{
					{Volume: "vol2", State: scheduler.StatePolling, Percent: 37},
				},
				Succeeded: 1,
				Failed:    1,
			}
		},
		Jobs: func() []scheduler.JobStatus {
			return []scheduler.JobStatus{
				{Volume: "vol1", State: scheduler.StateSucceeded, Percent: 100},
				{Volume: "vol3", State: scheduler.StateFailed, Reason: "dispatch failed"},
			}
		},
	}
}

func TestGetStatus(t *testing.T) {
	ts := httptest.NewServer(NewRouter(testServer()))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var sn scheduler.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&sn); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	if sn.RunID != "run-1" || sn.Total != 4 || sn.Pending != 1 {
		t.Errorf("snapshot = %+v", sn)
	}
	if len(sn.Active) != 1 || sn.Active[0].Volume != "vol2" || sn.Active[0].Percent != 37 {
		t.Errorf("active = %+v", sn.Active)
	}
}

func TestGetJobs(t *testing.T) {
	ts := httptest.NewServer(NewRouter(testServer()))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/jobs")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var jobs []scheduler.JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		t.Fatalf("decoding jobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	if jobs[1].Reason != "dispatch failed" {
		t.Errorf("jobs[1].Reason = %q", jobs[1].Reason)
	}
}

func TestGetJobsEmpty(t *testing.T) {
	s := testServer()
	s.Jobs = func() []scheduler.JobStatus { return nil }
	ts := httptest.NewServer(NewRouter(s))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/jobs")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var jobs []scheduler.JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		t.Fatalf("decoding jobs: %v", err)
	}
	if jobs == nil || len(jobs) != 0 {
		t.Errorf("jobs = %v, want empty array (not null)", jobs)
	}
}
