package state

import (
	"errors"
	"sync"
	"time"

	"alfredoptarigan/report-console/internal/models"
)

var ErrBusy = errors.New("pipeline is already running")

// Transition is published on every pipeline state change.
type Transition struct {
	Pipeline models.PipelineName
	From     models.PipelineState
	To       models.PipelineState
	Err      error
	At       time.Time
}

// Pipeline is the Idle -> Running -> Idle|Failed state machine guarding one
// pipeline against re-entry.
type Pipeline struct {
	mu         sync.Mutex
	name       models.PipelineName
	state      models.PipelineState
	lastErr    error
	startedAt  time.Time
	finishedAt time.Time
	listeners  []func(Transition)
	now        func() time.Time
}

func NewPipeline(name models.PipelineName) *Pipeline {
	return &Pipeline{
		name:  name,
		state: models.PipelineIdle,
		now:   time.Now,
	}
}

func (p *Pipeline) Name() models.PipelineName {
	return p.name
}

// OnTransition registers a listener. Listeners run outside the pipeline lock.
func (p *Pipeline) OnTransition(fn func(Transition)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Begin moves the pipeline to Running, or returns ErrBusy if it already is.
func (p *Pipeline) Begin() error {
	p.mu.Lock()
	if p.state == models.PipelineRunning {
		p.mu.Unlock()
		return ErrBusy
	}
	from := p.state
	p.state = models.PipelineRunning
	p.lastErr = nil
	p.startedAt = p.now()
	p.finishedAt = time.Time{}
	t := Transition{Pipeline: p.name, From: from, To: p.state, At: p.startedAt}
	listeners := append([]func(Transition){}, p.listeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(t)
	}
	return nil
}

// Finish ends a run. A nil error returns to Idle, anything else to Failed.
// Calling Finish on a pipeline that is not running is a no-op.
func (p *Pipeline) Finish(err error) {
	p.mu.Lock()
	if p.state != models.PipelineRunning {
		p.mu.Unlock()
		return
	}
	to := models.PipelineIdle
	if err != nil {
		to = models.PipelineFailed
	}
	p.state = to
	p.lastErr = err
	p.finishedAt = p.now()
	t := Transition{Pipeline: p.name, From: models.PipelineRunning, To: to, Err: err, At: p.finishedAt}
	listeners := append([]func(Transition){}, p.listeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(t)
	}
}

func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == models.PipelineRunning
}

func (p *Pipeline) Status() models.PipelineStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := models.PipelineStatus{Name: p.name, State: p.state}
	if p.lastErr != nil {
		status.Error = p.lastErr.Error()
	}
	if !p.startedAt.IsZero() {
		started := p.startedAt
		status.StartedAt = &started
	}
	if !p.finishedAt.IsZero() {
		finished := p.finishedAt
		status.FinishedAt = &finished
	}
	return status
}
