package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/llm"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

// ScriptedGateway is a Gateway double that answers calls from a fixed
// script, keyed by purpose. Used by pipeline and processor tests and by
// dry-run tooling; it never talks to a provider.
type ScriptedGateway struct {
	mu        sync.Mutex
	byPurpose map[models.CachePurpose][]string
	calls     []llm.CallInput
}

// NewScriptedGateway creates an empty script.
func NewScriptedGateway() *ScriptedGateway {
	return &ScriptedGateway{byPurpose: make(map[models.CachePurpose][]string)}
}

// Script queues responses for a purpose; they are consumed in order.
// The last response repeats once the queue drains.
func (g *ScriptedGateway) Script(purpose models.CachePurpose, responses ...string) *ScriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.byPurpose[purpose] = append(g.byPurpose[purpose], responses...)
	return g
}

// Calls returns a copy of every recorded call.
func (g *ScriptedGateway) Calls() []llm.CallInput {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]llm.CallInput, len(g.calls))
	copy(out, g.calls)
	return out
}

// CallsFor counts recorded calls with the given purpose.
func (g *ScriptedGateway) CallsFor(purpose models.CachePurpose) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.Purpose == purpose {
			n++
		}
	}
	return n
}

// Call implements Gateway.
func (g *ScriptedGateway) Call(_ context.Context, in llm.CallInput) (*llm.CallResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, in)

	queue := g.byPurpose[in.Purpose]
	if len(queue) == 0 {
		return nil, fmt.Errorf("scripted gateway: no response scripted for purpose %q", in.Purpose)
	}
	next := queue[0]
	if len(queue) > 1 {
		g.byPurpose[in.Purpose] = queue[1:]
	}
	return &llm.CallResult{
		Text:  next,
		JSON:  []byte(next),
		Model: "scripted",
	}, nil
}
