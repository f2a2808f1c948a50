// Package cron runs periodic maintenance alongside the server: pruning old
// runs from the store and probing an unhealthy engine back to life.
package cron

import "context"

// Job is a periodic background task.
type Job interface {
	// Name identifies the job in logs. Names must be unique per scheduler.
	Name() string

	// Schedule returns a 5-field cron expression or a descriptor such as
	// "@daily".
	Schedule() string

	Run(ctx context.Context) error
}
