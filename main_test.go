package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stepRecorder struct {
	steps    []string
	drainErr error
}

func (r *stepRecorder) Stop() { r.steps = append(r.steps, "monitor") }

func (r *stepRecorder) StopAll() { r.steps = append(r.steps, "connections") }

type drainStep struct{ *stepRecorder }

func (d drainStep) Close(context.Context) error {
	d.steps = append(d.steps, "router")
	return d.drainErr
}

type serverStep struct{ *stepRecorder }

func (s serverStep) ShutdownWithContext(context.Context) error {
	s.steps = append(s.steps, "http")
	return nil
}

func TestShutdown_DrainsBeforeClosingConnections(t *testing.T) {
	rec := &stepRecorder{}
	shutdown(context.Background(), rec, drainStep{rec}, rec, serverStep{rec})

	assert.Equal(t, []string{"monitor", "router", "connections", "http"}, rec.steps)
}

func TestShutdown_ContinuesWhenDrainTimesOut(t *testing.T) {
	rec := &stepRecorder{drainErr: errors.New("deadline exceeded")}
	shutdown(context.Background(), rec, drainStep{rec}, rec, serverStep{rec})

	assert.Equal(t, []string{"monitor", "router", "connections", "http"}, rec.steps)
}
