package tasks

import (
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Config defines the values the Consumer and Producer read, mirroring the
// configuration table in SPEC_FULL.md §6. It generalizes the original
// ConfigLayout/ConfigItem pattern (original_source/samba_chassis/config)
// into a plain validated struct, matching the teacher's own preference for
// a single exported Config type (qhenkart-gosqs/config.go).
type Config struct {
	// TaskPool names the logical queue shared by producers and consumers of
	// this task family. Required, must be lowercase.
	TaskPool string `envconfig:"TASK_POOL" required:"true"`
	// TaskTimeout is the queue-side visibility timeout, in seconds.
	TaskTimeout int `envconfig:"TASK_TIMEOUT" default:"120"`
	// Workers is the initial/floor worker count.
	Workers int `envconfig:"WORKERS" default:"3"`
	// UnknownTasksRetries bounds how many times a malformed/unregistered
	// command is parked before being given up on.
	UnknownTasksRetries int `envconfig:"UNKNOWN_TASKS_RETRIES" default:"50"`
	// UnknownTasksDelay is the visibility extension, in seconds, applied to
	// a parked unknown command.
	UnknownTasksDelay int `envconfig:"UNKNOWN_TASKS_DELAY" default:"10"`
	// MaxWorkers is the scaling ceiling. Zero disables scaling.
	MaxWorkers int `envconfig:"MAX_WORKERS" default:"6"`
	// ScaleFactor is the target number of queued messages per worker.
	ScaleFactor int `envconfig:"SCALE_FACTOR" default:"100"`
	// WhenWindow is the number of seconds before a deferred command's `when`
	// at which it becomes eligible for dequeue.
	WhenWindow int `envconfig:"WHEN_WINDOW" default:"300"`
}

// LoadConfigFromEnv populates a Config from environment variables prefixed
// with prefix (e.g. prefix "TASKS" reads TASKS_TASK_POOL, TASKS_WORKERS, ...)
// and validates it. Hand-built Config{} literals remain fully supported; this
// is an additional, idiomatic entry point grounded on
// ehsanshojaeiiii-sms-gateway's use of kelseyhightower/envconfig.
func LoadConfigFromEnv(prefix string) (Config, error) {
	var c Config
	if err := envconfig.Process(prefix, &c); err != nil {
		return Config{}, ErrConfiguration.Context(err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate enforces the constraints from SPEC_FULL.md §6's configuration
// table. Configuration errors are fatal per the error taxonomy in §7.
func (c Config) Validate() error {
	if c.TaskPool == "" {
		return ErrConfiguration.Context(errMsg("task_pool is required"))
	}
	if c.TaskPool != strings.ToLower(c.TaskPool) {
		return ErrConfiguration.Context(errMsg("task_pool must be lowercase"))
	}
	if c.TaskTimeout <= 0 {
		return ErrConfiguration.Context(errMsg("task_timeout must be > 0"))
	}
	if c.Workers <= 0 {
		return ErrConfiguration.Context(errMsg("workers must be > 0"))
	}
	if c.UnknownTasksRetries <= 0 {
		return ErrConfiguration.Context(errMsg("unknown_tasks_retries must be > 0"))
	}
	if c.UnknownTasksDelay <= 0 {
		return ErrConfiguration.Context(errMsg("unknown_tasks_delay must be > 0"))
	}
	if c.MaxWorkers < 0 {
		return ErrConfiguration.Context(errMsg("max_workers must be >= 0"))
	}
	if c.MaxWorkers != 0 && c.MaxWorkers < c.Workers {
		return ErrConfiguration.Context(errMsg("max_workers must be >= workers"))
	}
	if c.ScaleFactor <= 0 {
		return ErrConfiguration.Context(errMsg("scale_factor must be > 0"))
	}
	if c.WhenWindow <= 0 {
		return ErrConfiguration.Context(errMsg("when_window must be > 0"))
	}
	return nil
}

// scalingEnabled reports whether the scaling controller should run.
func (c Config) scalingEnabled() bool {
	return c.MaxWorkers > 0
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func errMsg(s string) error { return simpleErr(s) }
