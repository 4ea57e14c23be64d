package models

import "time"

// Role identifies one of the two supervised stack members.
type Role string

const (
	RoleAPI Role = "api"
	RoleUI  Role = "ui"
)

// Valid reports whether r names a known stack member.
func (r Role) Valid() bool {
	return r == RoleAPI || r == RoleUI
}

// Process is the externally visible view of a supervised process.
type Process struct {
	Role     Role   `json:"role"`
	Status   string `json:"status"`
	Pid      int    `json:"pid"`
	LaunchID string `json:"launch_id,omitempty"`
	Uptime   string `json:"uptime"`
	Memory   string `json:"memory"`
	CPU      string `json:"cpu"`
	LogPath  string `json:"log_path,omitempty"`
}

// LogEntry is one captured line of process or supervisor output.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
	Level     string `json:"level"`
	Role      Role   `json:"role,omitempty"`
	LaunchID  string `json:"launch_id,omitempty"`
}

// Topics published on the lifecycle bus.
const (
	TopicProcessStarted   = "process:started"
	TopicProcessExited    = "process:exited"
	TopicProcessUnhealthy = "process:unhealthy"
	TopicLogEntry         = "process:log"
)

// Event describes a lifecycle transition of a supervised process.
type Event struct {
	Role     Role      `json:"role"`
	Pid      int       `json:"pid"`
	LaunchID string    `json:"launch_id,omitempty"`
	ExitCode int       `json:"exit_code,omitempty"`
	At       time.Time `json:"at"`
}
