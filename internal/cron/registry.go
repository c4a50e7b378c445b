package cron

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Job is one unit of periodic maintenance. Run must honour ctx: the service
// cancels it when the per-job timeout or the process shutdown fires.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

var errNilJob = errors.New("cron: nil job")

// Registry is the ordered schedule executed on every cycle. Names are unique
// because they label metrics and log lines.
type Registry struct {
	jobs []Job
}

// NewRegistry skips nil jobs and panics on a duplicate name, like
// http.ServeMux does for a duplicate pattern.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, job := range jobs {
		if job == nil {
			continue
		}
		if err := r.Register(job); err != nil {
			panic(err)
		}
	}
	return r
}

func (r *Registry) Register(job Job) error {
	if job == nil {
		return errNilJob
	}
	name := job.Name()
	if slices.ContainsFunc(r.jobs, func(j Job) bool { return j.Name() == name }) {
		return fmt.Errorf("cron: job %q already registered", name)
	}
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *Registry) Jobs() []Job { return slices.Clone(r.jobs) }
