package ontap

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	sshPort        = 22
	sshExecTimeout = 2 * time.Minute
)

var (
	jobIDPattern    = regexp.MustCompile(`(?i)Job ID:\s*(\d+)`)
	jobIDAltPattern = regexp.MustCompile(`(?i)job-id\s+(\d+)`)
)

// SSHDispatcher starts volume moves over the cluster management CLI and
// falls back to the REST API for health checks and job polling, which the
// CLI does not expose in a machine-readable form.
type SSHDispatcher struct {
	conn Connection
	rest *Client
}

// NewSSHDispatcher creates the SSH client binding.
func NewSSHDispatcher(conn Connection) *SSHDispatcher {
	return &SSHDispatcher{conn: conn, rest: NewClient(conn)}
}

// CheckDestinationHealth delegates to the REST client.
func (d *SSHDispatcher) CheckDestinationHealth(ctx context.Context, aggregate string) (bool, error) {
	return d.rest.CheckDestinationHealth(ctx, aggregate)
}

// PollJob delegates to the REST client.
func (d *SSHDispatcher) PollJob(ctx context.Context, handle JobHandle) (string, int, error) {
	return d.rest.PollJob(ctx, handle)
}

// ListInFlight delegates to the REST client.
func (d *SSHDispatcher) ListInFlight(ctx context.Context) ([]InFlightMove, error) {
	return d.rest.ListInFlight(ctx)
}

// StartMove runs "volume move start" on the cluster CLI and parses the
// job id out of the human-readable output.
func (d *SSHDispatcher) StartMove(ctx context.Context, volume, aggregate string, opts MoveOptions) (JobHandle, error) {
	cmd := fmt.Sprintf(
		"volume move start -vserver %s-ns -volume %s -destination-aggregate %s -cutover-action %s -cutover-window %d",
		d.conn.Cluster, volume, aggregate, opts.CutoverAction, opts.CutoverWindow,
	)
	out, err := d.run(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("volume move start for %s: %w (output: %s)", volume, err, truncate(out, 200))
	}
	return parseJobHandle(out), nil
}

// run executes one command over SSH with password auth.
func (d *SSHDispatcher) run(ctx context.Context, cmd string) (string, error) {
	addr := net.JoinHostPort(d.conn.Cluster, fmt.Sprintf("%d", sshPort))

	sshCfg := &ssh.ClientConfig{
		User: d.conn.Username,
		// TODO: verify against known_hosts once cluster LIF keys are managed
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         connectTimeout,
		Auth: []ssh.AuthMethod{
			ssh.Password(d.conn.Password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = d.conn.Password
				}
				return answers, nil
			}),
		},
	}

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	// Bound the handshake and exec; ssh sessions have no context support.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(sshExecTimeout))
	}

	cconn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		return "", err
	}
	client := ssh.NewClient(cconn, chans, reqs)
	defer client.Close()

	sess, err := client.NewSession()
	if err != nil {
		return "", err
	}
	defer sess.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := sess.CombinedOutput(cmd)
		done <- result{out: out, err: err}
	}()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return string(r.out), r.err
		}
		return string(r.out), nil
	}
}

// parseJobHandle recovers the job id from CLI output. The output format
// is not contractually stable, so output from a command that exited
// cleanly but matched no known format is treated as a started move with
// a sentinel handle.
func parseJobHandle(out string) JobHandle {
	if m := jobIDPattern.FindStringSubmatch(out); m != nil {
		return JobHandle(m[1])
	}
	if m := jobIDAltPattern.FindStringSubmatch(out); m != nil {
		return JobHandle(m[1])
	}
	return SentinelHandle
}
