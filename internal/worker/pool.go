package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrQueueFull = errors.New("worker queue full")

type Handler interface {
	Handle(ctx context.Context, payload json.RawMessage) error
}

type Job struct {
	ID      string
	Type    string
	Payload json.RawMessage
	Timeout time.Duration
}

// Pool runs submitted jobs on at most size goroutines. Jobs are attempted
// once; a failed job is reported to OnResult and never retried here.
type Pool struct {
	handlers map[string]Handler
	queue    chan Job
	sem      chan struct{}
	stop     chan struct{}
	stopOnce sync.Once

	OnResult func(j Job, err error)
}

func NewPool(handlers map[string]Handler, size, queueSize int) *Pool {
	if size <= 0 {
		size = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Pool{
		handlers: handlers,
		queue:    make(chan Job, queueSize),
		sem:      make(chan struct{}, size),
		stop:     make(chan struct{}),
	}
}

func (p *Pool) Submit(j Job) error {
	select {
	case p.queue <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop may be called more than once.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Pool) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case <-p.stop:
			p.drain()
			return
		case j := <-p.queue:
			p.sem <- struct{}{}
			go func(j Job) {
				defer func() { <-p.sem }()
				p.report(j, p.handle(ctx, j))
			}(j)
		}
	}
}

func (p *Pool) handle(ctx context.Context, j Job) error {
	h, ok := p.handlers[j.Type]
	if !ok {
		return errors.New("no handler for " + j.Type)
	}
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	return h.Handle(ctx, j.Payload)
}

func (p *Pool) report(j Job, err error) {
	if err != nil {
		log.Warn().Err(err).Str("job_id", j.ID).Str("type", j.Type).Msg("job failed")
	}
	if p.OnResult != nil {
		p.OnResult(j, err)
	}
}

// drain waits for running jobs to finish.
func (p *Pool) drain() {
	for i := 0; i < cap(p.sem); i++ {
		p.sem <- struct{}{}
	}
	for i := 0; i < cap(p.sem); i++ {
		<-p.sem
	}
}
