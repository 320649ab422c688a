package workerpool

import (
	"sync"
)

// Job is a unit of work submitted to a Pool
type Job func() error

// Pool runs jobs with a bounded number of workers. Jobs added after Stop
// are discarded. The first error returned by a job is retained and
// reported by Wait.
type Pool struct {
	jobs chan Job
	stop chan struct{}

	wg   sync.WaitGroup
	once sync.Once

	m   sync.Mutex
	err error
}

// New creates a Pool with the requested number of workers
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		jobs: make(chan Job, 2*workers),
		stop: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Add enqueues jobs without blocking the caller
func (p *Pool) Add(jobs []Job) {
	p.wg.Add(len(jobs))
	go p.enqueue(jobs)
}

// AddBlocking enqueues jobs, blocking until all of them have been handed
// to the pool. Use this to bound memory when submitting many jobs.
func (p *Pool) AddBlocking(jobs []Job) {
	p.wg.Add(len(jobs))
	p.enqueue(jobs)
}

// Wait blocks until all added jobs have completed or been discarded by
// Stop, and returns the first error encountered.
func (p *Pool) Wait() error {
	p.wg.Wait()
	p.m.Lock()
	defer p.m.Unlock()
	return p.err
}

// Stop discards pending jobs; jobs already running complete normally.
// The pool cannot be reused after Stop.
func (p *Pool) Stop() {
	p.once.Do(func() {
		close(p.stop)
		// workers exit on stop, so this drainer owns the queue from
		// here on: it discards anything queued or still being enqueued
		go func() {
			for range p.jobs {
				p.wg.Done()
			}
		}()
	})
}

func (p *Pool) enqueue(jobs []Job) {
	for _, job := range jobs {
		select {
		case <-p.stop:
			p.wg.Done()
		case p.jobs <- job:
		}
	}
}

func (p *Pool) worker() {
	for {
		select {
		case <-p.stop:
			return
		case job := <-p.jobs:
			p.run(job)
		}
	}
}

func (p *Pool) run(job Job) {
	defer p.wg.Done()
	if err := job(); err != nil {
		p.m.Lock()
		if p.err == nil {
			p.err = err
		}
		p.m.Unlock()
	}
}
