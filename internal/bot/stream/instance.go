package stream

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Instance identifies this process as a stream consumer. It is constructed
// once at startup and passed to the guard, so conflict diagnostics can name
// which instance observed them.
type Instance struct {
	Host      string
	PID       int
	StartedAt time.Time
	ID        string
}

// NewInstance builds the identity from host, process and start time, plus a
// short random suffix to disambiguate fast restarts on the same host.
func NewInstance() Instance {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	pid := os.Getpid()
	started := time.Now().UTC()

	return Instance{
		Host:      host,
		PID:       pid,
		StartedAt: started,
		ID:        fmt.Sprintf("%s-%d-%d-%s", host, pid, started.Unix(), uuid.NewString()[:8]),
	}
}

func (i Instance) String() string {
	return i.ID
}
