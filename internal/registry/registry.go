// Package registry maps component names to the commands they export.
// Components register themselves from init() and are dispatched by name.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"ais_parser/internal/config"
	"ais_parser/internal/logging"
)

// Errors returned by Dispatch.
var (
	ErrUnknownComponent = errors.New("unknown component")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrUnavailable      = errors.New("component unavailable")
)

// Kind classifies a component.
type Kind string

// Component kinds.
const (
	KindRepository Kind = "repository"
	KindProgram    Kind = "program"
)

// Env is what a command runs against.
type Env struct {
	Config *config.Config
	Out    io.Writer
}

// Command is one exported operation of a component.
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, env *Env, args []string) error
}

// Component is implemented by every registered repository and program.
type Component interface {
	// Name returns the component's unique identifier.
	Name() string

	Kind() Kind

	// Commands lists the exported commands in display order.
	Commands() []Command

	// Inputs and Outputs name the repositories a program reads and writes.
	// They must be configured for the component to be available.
	Inputs() []string
	Outputs() []string
}

// Spec is a Component assembled from plain values.
type Spec struct {
	ComponentName string
	ComponentKind Kind
	Exports       []Command
	In            []string
	Out           []string
}

func (s *Spec) Name() string        { return s.ComponentName }
func (s *Spec) Kind() Kind          { return s.ComponentKind }
func (s *Spec) Commands() []Command { return s.Exports }
func (s *Spec) Inputs() []string    { return s.In }
func (s *Spec) Outputs() []string   { return s.Out }

// Registry holds the registered components.
type Registry struct {
	mu         sync.RWMutex
	components map[string]Component
}

// New creates a new Registry instance.
func New() *Registry {
	return &Registry{components: make(map[string]Component)}
}

// Global default registry.
var defaultRegistry = New()

// Default returns the global registry instance.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a component to the default registry.
// Called during init() in the components package.
func Register(c Component) {
	defaultRegistry.Register(c)
}

// Register adds a component. Registering the same name twice panics.
func (r *Registry) Register(c Component) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.components[c.Name()]; dup {
		panic("registry: component registered twice: " + c.Name())
	}
	r.components[c.Name()] = c
}

// Lookup returns the component registered under name.
func (r *Registry) Lookup(name string) (Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[name]
	return c, ok
}

// All returns every registered component sorted by name.
func (r *Registry) All() []Component {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Component, 0, len(r.components))
	for _, c := range r.components {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name() < out[j].Name()
	})
	return out
}

// missing returns the declared inputs and outputs of c that cfg does not
// configure.
func missing(c Component, cfg *config.Config) []string {
	var out []string
	for _, names := range [][]string{c.Inputs(), c.Outputs()} {
		for _, name := range names {
			if cfg == nil || !cfg.HasRepository(name) {
				out = append(out, name)
			}
		}
	}
	return out
}

// Available returns the components whose inputs and outputs are configured.
// Excluded components are logged.
func (r *Registry) Available(env *Env) []Component {
	var out []Component
	for _, c := range r.All() {
		if m := missing(c, env.Config); len(m) > 0 {
			logging.Warn().Str("component", c.Name()).Strs("missing", m).Msg("component excluded, repositories not configured")
			continue
		}
		out = append(out, c)
	}
	return out
}

// Trace describes one dispatched command.
type Trace struct {
	Component string
	Command   string
	Started   time.Time
	Elapsed   time.Duration
	Err       error
}

// Dispatch runs a component's command.
func (r *Registry) Dispatch(ctx context.Context, component, command string, env *Env, args []string) (Trace, error) {
	tr := Trace{Component: component, Command: command, Started: time.Now()}

	c, ok := r.Lookup(component)
	if !ok {
		tr.Err = fmt.Errorf("%w: %s", ErrUnknownComponent, component)
		return tr, tr.Err
	}
	if m := missing(c, env.Config); len(m) > 0 {
		tr.Err = fmt.Errorf("%w: %s needs %v", ErrUnavailable, component, m)
		return tr, tr.Err
	}

	var cmd *Command
	cmds := c.Commands()
	for i := range cmds {
		if cmds[i].Name == command {
			cmd = &cmds[i]
			break
		}
	}
	if cmd == nil {
		tr.Err = fmt.Errorf("%w: %s %s", ErrUnknownCommand, component, command)
		return tr, tr.Err
	}

	logging.Debug().Str("component", component).Str("command", command).Strs("args", args).Msg("dispatching")
	tr.Err = cmd.Run(ctx, env, args)
	tr.Elapsed = time.Since(tr.Started)
	return tr, tr.Err
}
