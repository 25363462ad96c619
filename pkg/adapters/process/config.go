package process

import (
	"errors"
	"time"
)

// Config describes the external command that receives submissions.
type Config struct {
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args" json:"args"`
	Env     map[string]string `yaml:"env" json:"env"`
	// Dir is the working directory. Empty means the current one.
	Dir string `yaml:"dir" json:"dir"`
	// Timeout bounds one run. Zero means no limit beyond the caller's context.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.Command == "" {
		return errors.New("process command is required")
	}
	if c.Timeout < 0 {
		return errors.New("process timeout must not be negative")
	}
	return nil
}
