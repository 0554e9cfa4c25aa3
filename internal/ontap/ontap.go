package ontap

import "context"

// JobHandle is the opaque reference the cluster returns for one
// in-progress volume move. Never interpreted by callers.
type JobHandle string

// SentinelHandle is used when the SSH dispatch path reports a successful
// start but the job id could not be recovered from the CLI output.
const SentinelHandle JobHandle = "CLI_JOB"

// MoveOptions are passed through to the cluster unmodified.
type MoveOptions struct {
	CutoverAction string // "retry", "defer", "abort" or "force"
	CutoverWindow int    // seconds
}

// InFlightMove describes one volume move currently running on the cluster.
type InFlightMove struct {
	Volume               string `json:"volume"`
	DestinationAggregate string `json:"destination_aggregate"`
	State                string `json:"state"`
	Percent              int    `json:"percent"`
}

// ControlPlane is the boundary to the ONTAP cluster. All network I/O the
// scheduler performs goes through this interface.
type ControlPlane interface {
	// CheckDestinationHealth reports whether the destination aggregate is
	// online and able to receive moves.
	CheckDestinationHealth(ctx context.Context, aggregate string) (bool, error)

	// StartMove initiates a volume move and returns its job handle.
	StartMove(ctx context.Context, volume, aggregate string, opts MoveOptions) (JobHandle, error)

	// PollJob returns the cluster-reported state string and percent
	// complete for a move job.
	PollJob(ctx context.Context, handle JobHandle) (state string, percent int, err error)

	// ListInFlight returns the moves currently running on the cluster.
	ListInFlight(ctx context.Context) ([]InFlightMove, error)
}

// Connection holds everything needed to reach one cluster. Constructed
// once per run and passed by value; there is no shared connection state.
type Connection struct {
	Cluster  string
	Username string
	Password string
	Insecure bool // skip TLS verification
}

// NewControlPlane creates the requested client binding. "ssh" dispatches
// moves over the cluster CLI; anything else uses the REST API directly.
func NewControlPlane(conn Connection, dispatch string) ControlPlane {
	switch dispatch {
	case "ssh":
		return NewSSHDispatcher(conn)
	default:
		return NewClient(conn)
	}
}
