// Package supervisor runs the long-lived services of the realtime server
// under a suture tree.
package supervisor

import (
	"context"
	"time"

	"devlink-realtime/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree has two layers: realtime (hub, polling reaper, presence mirror) and
// api (HTTP server). The api layer can restart without touching presence.
type Tree struct {
	root     *suture.Supervisor
	realtime *suture.Supervisor
	api      *suture.Supervisor
	config   TreeConfig
}

func NewTree(config TreeConfig) *Tree {
	defaults := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = defaults.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = defaults.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}

	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	rootSpec := childSpec
	rootSpec.EventHook = EventHook()

	root := suture.New("devlink-realtime", rootSpec)
	realtime := suture.New("realtime-layer", childSpec)
	api := suture.New("api-layer", childSpec)
	root.Add(realtime)
	root.Add(api)

	return &Tree{root: root, realtime: realtime, api: api, config: config}
}

func (t *Tree) Root() *suture.Supervisor {
	return t.root
}

// AddRealtimeService adds a restartable service to the realtime layer.
func (t *Tree) AddRealtimeService(svc suture.Service) suture.ServiceToken {
	return t.realtime.Add(svc)
}

// AddCriticalService adds a service whose failure ends the whole tree.
func (t *Tree) AddCriticalService(svc suture.Service) suture.ServiceToken {
	return t.realtime.Add(Critical(svc))
}

func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve blocks until ctx is cancelled or a critical service fails.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services in either layer that missed the
// shutdown timeout. It blocks until the tree has stopped.
func (t *Tree) UnstoppedServiceReport() (suture.UnstoppedServiceReport, error) {
	var report suture.UnstoppedServiceReport
	for _, s := range []*suture.Supervisor{t.root, t.realtime, t.api} {
		r, err := s.UnstoppedServiceReport()
		if err != nil {
			return report, err
		}
		report = append(report, r...)
	}
	return report, nil
}

// EventHook logs suture events through the global logger.
func EventHook() suture.EventHook {
	return func(e suture.Event) {
		zl := logger.Zerolog()
		var ev *zerolog.Event
		switch e.Type() {
		case suture.EventTypeServicePanic, suture.EventTypeStopTimeout:
			ev = zl.Error()
		case suture.EventTypeServiceTerminate, suture.EventTypeBackoff:
			ev = zl.Warn()
		default:
			ev = zl.Info()
		}
		ev.Str("component", "supervisor").Fields(e.Map()).Msg(e.String())
	}
}
