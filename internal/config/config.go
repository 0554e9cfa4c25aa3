package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PasswordEnv is consulted when --password is not given.
const PasswordEnv = "VOLMOVE_PASSWORD"

var cutoverActions = map[string]bool{
	"retry": true,
	"defer": true,
	"abort": true,
	"force": true,
}

// Config holds all settings for one run (CLI flags + optional config file).
type Config struct {
	Cluster           string   `yaml:"cluster"`
	Username          string   `yaml:"username"`
	Password          string   `yaml:"password"`
	DestAggr          string   `yaml:"dest_aggr"`
	Volumes           []string `yaml:"volumes"`
	VolumeList        string   `yaml:"volume_list"`
	MaxConcurrent     int      `yaml:"max_concurrent"`
	CutoverAction     string   `yaml:"cutover_action"`
	CutoverWindow     int      `yaml:"cutover_window"` // seconds
	Timeout           int      `yaml:"timeout"`        // seconds, per volume
	PollInterval      int      `yaml:"poll_interval"`  // seconds
	StatusInterval    int      `yaml:"status_interval"` // seconds
	Insecure          bool     `yaml:"insecure"`
	IgnoreHealthCheck bool     `yaml:"ignore_health_check"`
	CheckDuplicates   bool     `yaml:"check_duplicates"`
	Dispatch          string   `yaml:"dispatch"` // "rest" or "ssh"
	LogLevel          string   `yaml:"log_level"`
	LogFile           string   `yaml:"log_file"`
	Listen            string   `yaml:"listen"` // status server address, empty = disabled

	configFile string
}

// Parse reads CLI flags from args, then overlays config file values for
// anything the flags left unset. CLI flags take precedence.
func Parse(args []string) (*Config, error) {
	c := &Config{}
	fs := flag.NewFlagSet("volmove", flag.ContinueOnError)

	fs.StringVar(&c.configFile, "config", "", "Path to config file (YAML)")
	fs.StringVar(&c.Cluster, "cluster", "", "Cluster management IP or hostname")
	fs.StringVar(&c.Username, "username", "", "Admin username")
	fs.StringVar(&c.Password, "password", "", "Admin password (or set $"+PasswordEnv+")")
	fs.StringVar(&c.DestAggr, "dest-aggr", "", "Destination aggregate name")
	fs.Var((*stringList)(&c.Volumes), "volume", "Volume to move (repeatable)")
	fs.StringVar(&c.VolumeList, "volume-list", "", "Path to file with one volume per line")
	fs.IntVar(&c.MaxConcurrent, "max-concurrent", 0, "Maximum concurrent volume moves (default 4)")
	fs.StringVar(&c.CutoverAction, "cutover-action", "", "Action when cutover is delayed: retry|defer|abort|force (default retry)")
	fs.IntVar(&c.CutoverWindow, "cutover-window", 0, "Cutover time window in seconds (default 30)")
	fs.IntVar(&c.Timeout, "timeout", 0, "Per-volume move timeout in seconds (default 86400)")
	fs.IntVar(&c.PollInterval, "poll-interval", 0, "Seconds between job polls (default 30)")
	fs.IntVar(&c.StatusInterval, "status-interval", 0, "Seconds between status blocks (default 60)")
	fs.BoolVar(&c.Insecure, "insecure", false, "Disable TLS certificate verification")
	fs.BoolVar(&c.IgnoreHealthCheck, "ignore-health-check", false, "Skip destination aggregate health check")
	fs.BoolVar(&c.CheckDuplicates, "check-duplicates", false, "Skip volumes that already have an active move")
	fs.StringVar(&c.Dispatch, "dispatch", "", "Client binding: rest|ssh (default rest)")
	fs.StringVar(&c.LogLevel, "log-level", "", "Log level: debug|info|warn|error (default info)")
	fs.StringVar(&c.LogFile, "log-file", "", "Also write logs to this file")
	fs.StringVar(&c.Listen, "listen", "", "Serve live status on this address (e.g. :8080)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if c.configFile != "" {
		if err := c.loadFile(c.configFile); err != nil {
			return nil, err
		}
	}

	if c.Password == "" {
		c.Password = os.Getenv(PasswordEnv)
	}
	c.applyDefaults()

	return c, c.validate()
}

// loadFile overlays values from a YAML file. Values already set by flags
// are kept.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if c.Cluster == "" {
		c.Cluster = file.Cluster
	}
	if c.Username == "" {
		c.Username = file.Username
	}
	if c.Password == "" {
		c.Password = file.Password
	}
	if c.DestAggr == "" {
		c.DestAggr = file.DestAggr
	}
	c.Volumes = append(c.Volumes, file.Volumes...)
	if c.VolumeList == "" {
		c.VolumeList = file.VolumeList
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = file.MaxConcurrent
	}
	if c.CutoverAction == "" {
		c.CutoverAction = file.CutoverAction
	}
	if c.CutoverWindow == 0 {
		c.CutoverWindow = file.CutoverWindow
	}
	if c.Timeout == 0 {
		c.Timeout = file.Timeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = file.PollInterval
	}
	if c.StatusInterval == 0 {
		c.StatusInterval = file.StatusInterval
	}
	if !c.Insecure {
		c.Insecure = file.Insecure
	}
	if !c.IgnoreHealthCheck {
		c.IgnoreHealthCheck = file.IgnoreHealthCheck
	}
	if !c.CheckDuplicates {
		c.CheckDuplicates = file.CheckDuplicates
	}
	if c.Dispatch == "" {
		c.Dispatch = file.Dispatch
	}
	if c.LogLevel == "" {
		c.LogLevel = file.LogLevel
	}
	if c.LogFile == "" {
		c.LogFile = file.LogFile
	}
	if c.Listen == "" {
		c.Listen = file.Listen
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 4
	}
	if c.CutoverAction == "" {
		c.CutoverAction = "retry"
	}
	if c.CutoverWindow == 0 {
		c.CutoverWindow = 30
	}
	if c.Timeout == 0 {
		c.Timeout = 86400
	}
	if c.PollInterval == 0 {
		c.PollInterval = 30
	}
	if c.StatusInterval == 0 {
		c.StatusInterval = 60
	}
	if c.Dispatch == "" {
		c.Dispatch = "rest"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if c.Cluster == "" {
		return fmt.Errorf("cluster is required")
	}
	if c.Username == "" {
		return fmt.Errorf("username is required")
	}
	if c.Password == "" {
		return fmt.Errorf("password is required (flag, config file or $%s)", PasswordEnv)
	}
	if c.DestAggr == "" {
		return fmt.Errorf("dest-aggr is required")
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max-concurrent must be >= 1, got %d", c.MaxConcurrent)
	}
	if !cutoverActions[c.CutoverAction] {
		return fmt.Errorf("invalid cutover-action %q (want retry, defer, abort or force)", c.CutoverAction)
	}
	if c.Dispatch != "rest" && c.Dispatch != "ssh" {
		return fmt.Errorf("invalid dispatch %q (want rest or ssh)", c.Dispatch)
	}
	return nil
}

// TimeoutDuration returns the per-volume timeout.
func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// PollIntervalDuration returns the poll cadence.
func (c *Config) PollIntervalDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// StatusIntervalDuration returns the periodic status cadence.
func (c *Config) StatusIntervalDuration() time.Duration {
	return time.Duration(c.StatusInterval) * time.Second
}

// stringList implements flag.Value for a repeatable string flag.
type stringList []string

func (l *stringList) String() string {
	return fmt.Sprintf("%v", []string(*l))
}

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}
