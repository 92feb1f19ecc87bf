package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/auricle/pkg/provider/embeddings"
	"github.com/MrWong99/auricle/pkg/provider/llm"
	"github.com/MrWong99/auricle/pkg/provider/stt"
	"github.com/MrWong99/auricle/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by the Create methods when no
// factory exists under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// kindRegistry is one name-to-factory table. Registry holds one per
// provider kind so creation stays type-safe without four copies of the
// same map handling.
type kindRegistry[T any] struct {
	mu        sync.RWMutex
	factories map[string]func(ProviderEntry) (T, error)
}

func newKindRegistry[T any]() *kindRegistry[T] {
	return &kindRegistry[T]{factories: make(map[string]func(ProviderEntry) (T, error))}
}

func (k *kindRegistry[T]) register(name string, factory func(ProviderEntry) (T, error)) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.factories[name] = factory
}

func (k *kindRegistry[T]) create(kind string, entry ProviderEntry) (T, error) {
	k.mu.RLock()
	factory, ok := k.factories[entry.Name]
	k.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}

// Registry maps provider names to constructor functions for each provider
// kind. Safe for concurrent use.
type Registry struct {
	stt        *kindRegistry[stt.Provider]
	tts        *kindRegistry[tts.Provider]
	llm        *kindRegistry[llm.Provider]
	embeddings *kindRegistry[embeddings.Provider]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:        newKindRegistry[stt.Provider](),
		tts:        newKindRegistry[tts.Provider](),
		llm:        newKindRegistry[llm.Provider](),
		embeddings: newKindRegistry[embeddings.Provider](),
	}
}

// RegisterSTT registers an STT provider factory under name. Registering a
// name again replaces the previous factory.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.stt.register(name, factory)
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.tts.register(name, factory)
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.llm.register(name, factory)
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(ProviderEntry) (embeddings.Provider, error)) {
	r.embeddings.register(name, factory)
}

// CreateSTT builds an STT provider with the factory registered under
// entry.Name. Unknown names return [ErrProviderNotRegistered].
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return r.stt.create("stt", entry)
}

// CreateTTS builds a TTS provider with the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return r.tts.create("tts", entry)
}

// CreateLLM builds an LLM provider with the factory registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return r.llm.create("llm", entry)
}

// CreateEmbeddings builds an embeddings provider with the factory
// registered under entry.Name.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	return r.embeddings.create("embeddings", entry)
}
