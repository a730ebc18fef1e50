package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/echochamber/pkg/provider/llm"
	"github.com/MrWong99/echochamber/pkg/provider/stt"
	"github.com/MrWong99/echochamber/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned when no factory is registered under
// a [ProviderEntry]'s name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is one stage's name → constructor table.
type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

func (f factories[T]) create(entry ProviderEntry) (T, error) {
	factory, ok := f.m[entry.Name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	p, err := factory(entry)
	if err != nil {
		return p, fmt.Errorf("config: build %s/%q: %w", f.kind, entry.Name, err)
	}
	return p, nil
}

// Registry maps backend names to constructors for the three pipeline
// stages. Registering a name twice replaces the earlier factory. It is safe
// for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	stt factories[stt.Provider]
	llm factories[llm.Provider]
	tts factories[tts.Provider]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt: newFactories[stt.Provider]("stt"),
		llm: newFactories[llm.Provider]("llm"),
		tts: newFactories[tts.Provider]("tts"),
	}
}

// RegisterSTT adds a speech-to-text factory under name.
func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) { r.set(func() { r.stt.m[name] = f }) }

// RegisterLLM adds a reply generator factory under name.
func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) { r.set(func() { r.llm.m[name] = f }) }

// RegisterTTS adds a speech synthesis factory under name.
func (r *Registry) RegisterTTS(name string, f Factory[tts.Provider]) { r.set(func() { r.tts.m[name] = f }) }

func (r *Registry) set(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

// CreateSTT builds the speech-to-text backend named by entry.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.create(entry)
}

// CreateLLM builds the reply generator named by entry.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.create(entry)
}

// CreateTTS builds the speech synthesiser named by entry.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tts.create(entry)
}

// Names returns the sorted registered names for kind ("stt", "llm" or
// "tts"), or nil for an unknown kind.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case "stt":
		return slices.Sorted(maps.Keys(r.stt.m))
	case "llm":
		return slices.Sorted(maps.Keys(r.llm.m))
	case "tts":
		return slices.Sorted(maps.Keys(r.tts.m))
	}
	return nil
}
