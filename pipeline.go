// Package pipebuffer provides the main entrypoint for the pipebuffer library.
//
// A pipeline connects an ingress stage (the producer) to an egress stage
// (the consumer) through a shared buffer.Buffer, amplifying the capacity
// of a unix-style pipe: bursts from a fast producer are absorbed in memory
// up to the configured budget instead of stalling on the kernel pipe buffer.
package pipebuffer

import (
	"context"
	"sync"

	"github.com/pipebuffer/pipebuffer/buffer"
)

// Buffer is the shared byte connector placed between the stages.
type Buffer = buffer.Buffer

// NewBuffer returns a new buffer with the given capacity in bytes.
func NewBuffer(capacity int) *Buffer {
	return buffer.New(capacity)
}

// Stage defines the interface for a generic stage.
type Stage interface {
	// Init initializes the stage.
	Init(ctx context.Context) error
	// Run runs the stage.
	Run(ctx context.Context)
	// Close closes (forever) the stage.
	Close()
}

// Pipeline represents a producer/consumer pipeline.
// It is the entrypoint for the stages.
type Pipeline struct {
	stages []Stage

	wg        *sync.WaitGroup
	isRunning bool
}

// NewPipeline returns a new pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		stages: []Stage{},

		wg:        &sync.WaitGroup{},
		isRunning: false,
	}
}

// AddStage adds a stage to the pipeline.
// The order of the stages is important.
func (p *Pipeline) AddStage(stage Stage) {
	if p.isRunning {
		return
	}

	p.stages = append(p.stages, stage)
}

// Init initializes all the stages.
func (p *Pipeline) Init(ctx context.Context) error {
	for _, stage := range p.stages {
		if err := stage.Init(ctx); err != nil {
			return err
		}
	}

	return nil
}

// Run runs all the stages.
// It will spawn a goroutine for each stage.
func (p *Pipeline) Run(ctx context.Context) {
	p.isRunning = true

	p.wg.Add(len(p.stages))

	for _, stage := range p.stages {
		go func() {
			stage.Run(ctx)
			p.wg.Done()
		}()
	}
}

// Wait blocks until every stage has finished running. For a pipe this is
// the normal shutdown path: the producer reaches end-of-stream, closes the
// buffer and the consumer returns once the last buffered byte is flushed.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Close closes all the stages.
// It blocks until all the stages are closed.
func (p *Pipeline) Close() {
	for _, stage := range p.stages {
		stage.Close()
	}

	p.wg.Wait()
}
