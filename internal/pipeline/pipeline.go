package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/nao1215/pagesnap/internal/browser"
	"github.com/nao1215/pagesnap/internal/model"
)

// Step is one stage of page extraction. Steps run in sequence on the same
// Run and each fills its own part of the snapshot.
type Step interface {
	// Do executes the step. A returned error is recorded on the snapshot;
	// whether the pipeline continues depends on the step and the pipeline.
	Do(ctx context.Context, run *Run) error

	// Name identifies the step in logs and stage errors.
	Name() string
}

// fatal is implemented by steps whose failure makes the rest of the run
// meaningless.
type fatal interface {
	Fatal() bool
}

// Run is the state of one extraction of one URL.
type Run struct {
	Page     browser.Page
	URL      string
	Options  model.CrawlOptions
	Snapshot *model.PageSnapshot

	capture *capture
}

// Pipeline executes steps in order.
type Pipeline struct {
	steps []Step

	logger *slog.Logger

	// continueOnError keeps going after a non-fatal step fails.
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue after a step
// fails. Failed steps are logged and recorded as stage errors. Fatal steps
// stop the pipeline regardless.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all steps in sequence.
//
// Cancellation is checked before each step; a cancelled run records the step
// it stopped at and returns ctx.Err(). A failing fatal step, or any failing
// step when continueOnError is off, ends the run with that error.
func (p *Pipeline) Execute(ctx context.Context, run *Run) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"url", run.URL,
				"reason", err,
			)
			run.Snapshot.AddStageError(step.Name(), err)
			return err
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"url", run.URL,
		)

		if err := step.Do(ctx, run); err != nil {
			p.logger.Warn("step failed",
				"step", step.Name(),
				"url", run.URL,
				"error", err,
			)
			if f, ok := step.(fatal); ok && f.Fatal() {
				return err
			}
			run.Snapshot.AddStageError(step.Name(), err)
			if !p.continueOnError {
				return err
			}
			continue
		}

		p.logger.Debug("step completed",
			"step", step.Name(),
			"url", run.URL,
		)
	}
	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}

// capture buffers console messages and requests, keeping the first limit of
// each. Listener callbacks may arrive from another goroutine.
type capture struct {
	mu       sync.Mutex
	limit    int
	console  []model.ConsoleLog
	requests []model.NetworkRequest
}

func newCapture(limit int) *capture {
	return &capture{limit: limit}
}

func (c *capture) addConsole(entry model.ConsoleLog) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.console) < c.limit {
		c.console = append(c.console, entry)
	}
}

func (c *capture) addRequest(req model.NetworkRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) < c.limit {
		c.requests = append(c.requests, req)
	}
}

func (c *capture) drain() ([]model.ConsoleLog, []model.NetworkRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.ConsoleLog(nil), c.console...),
		append([]model.NetworkRequest(nil), c.requests...)
}

// errNoCapture is returned by the capture step when listeners were never attached.
var errNoCapture = errors.New("console and network listeners not attached")
