package cron

import "context"

// Job is one unit of scheduled work run by the worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the jobs a worker instance executes each cycle. Duplicate
// names are rejected so two jobs never share metrics labels.
type Registry struct {
	jobs  []Job
	names map[string]bool
}

// NewRegistry builds a registry preloaded with the provided jobs.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{names: map[string]bool{}}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register adds a job; nil jobs and duplicate names are ignored.
func (r *Registry) Register(job Job) {
	if job == nil || r.names[job.Name()] {
		return
	}
	r.names[job.Name()] = true
	r.jobs = append(r.jobs, job)
}

// Jobs returns the registered jobs in registration order.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}
