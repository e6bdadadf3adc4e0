// Package sandboxtest provides an in-process sandbox.Provider for tests.
// Behaviours run as goroutines against the workspace directory on the host.
package sandboxtest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/itstheanurag/fnrunner/internal/sandbox"
)

// Behavior plays the role of the function's code. It returns the exit code.
type Behavior func(ctx context.Context, spec sandbox.Spec) int64

type unit struct {
	spec   sandbox.Spec
	cancel context.CancelFunc
	done   chan struct{}
	code   int64
}

type Provider struct {
	Behavior  Behavior
	CreateErr error
	StartErr  error
	KillErr   error

	// CreateDelay holds Create back, or until ctx is done.
	CreateDelay time.Duration

	mu      sync.Mutex
	next    int
	units   map[string]*unit
	specs   []sandbox.Spec
	killed  []string
	removed []string
	images  []string
}

func New(b Behavior) *Provider {
	return &Provider{Behavior: b, units: make(map[string]*unit)}
}

var _ sandbox.Provider = (*Provider)(nil)

func (p *Provider) Create(ctx context.Context, spec sandbox.Spec) (string, error) {
	if p.CreateDelay > 0 {
		select {
		case <-time.After(p.CreateDelay):
		case <-ctx.Done():
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.specs = append(p.specs, spec)
	if p.CreateErr != nil {
		return "", p.CreateErr
	}
	p.next++
	id := fmt.Sprintf("fake-%d", p.next)
	p.units[id] = &unit{spec: spec}
	return id, nil
}

func (p *Provider) Start(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.StartErr != nil {
		return p.StartErr
	}
	u, ok := p.units[id]
	if !ok {
		return fmt.Errorf("no such unit %s", id)
	}
	ctx, cancel := context.WithCancel(context.Background())
	u.cancel = cancel
	u.done = make(chan struct{})
	behavior := p.Behavior
	go func() {
		defer close(u.done)
		u.code = behavior(ctx, u.spec)
	}()
	return nil
}

func (p *Provider) Wait(ctx context.Context, id string) (int64, error) {
	p.mu.Lock()
	u, ok := p.units[id]
	p.mu.Unlock()
	if !ok || u.done == nil {
		return -1, fmt.Errorf("unit %s was not started", id)
	}
	select {
	case <-u.done:
		return u.code, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

func (p *Provider) Kill(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed = append(p.killed, id)
	if u, ok := p.units[id]; ok && u.cancel != nil {
		u.cancel()
	}
	return p.KillErr
}

func (p *Provider) Remove(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, id)
	if u, ok := p.units[id]; ok && u.cancel != nil {
		u.cancel()
	}
	return nil
}

func (p *Provider) EnsureImage(_ context.Context, image string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.images = append(p.images, image)
	return nil
}

// Specs returns every spec passed to Create, including failed ones.
func (p *Provider) Specs() []sandbox.Spec {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sandbox.Spec(nil), p.specs...)
}

func (p *Provider) Killed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.killed...)
}

func (p *Provider) Removed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.removed...)
}

func (p *Provider) Images() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.images...)
}

// Echo copies the input's body into output.json, like the canonical echo function.
func Echo(_ context.Context, spec sandbox.Spec) int64 {
	raw, err := os.ReadFile(filepath.Join(spec.HostDir, "input.json"))
	if err != nil {
		return 1
	}
	var input struct {
		Body json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(raw, &input); err != nil {
		return 1
	}
	if err := os.WriteFile(filepath.Join(spec.HostDir, "output.json"), input.Body, 0o644); err != nil {
		return 1
	}
	return 0
}

// WriteOutput writes content verbatim to output.json and exits cleanly.
func WriteOutput(content string) Behavior {
	return func(_ context.Context, spec sandbox.Spec) int64 {
		if err := os.WriteFile(filepath.Join(spec.HostDir, "output.json"), []byte(content), 0o644); err != nil {
			return 1
		}
		return 0
	}
}

// Exit returns code without writing anything.
func Exit(code int64) Behavior {
	return func(context.Context, sandbox.Spec) int64 { return code }
}

// Hang runs until killed.
func Hang(ctx context.Context, _ sandbox.Spec) int64 {
	<-ctx.Done()
	return 137
}
