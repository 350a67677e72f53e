package providers

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when registering a duplicate
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Registry holds the closed set of provider clients. It is populated
// during startup and frozen before the server accepts traffic, so reads
// need no locking: the candidate set is process-wide, immutable after
// initialization, and shared by all concurrent requests.
type Registry struct {
	clients map[string]Client
	order   []string
	frozen  bool
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]Client),
	}
}

// Register adds a provider client. Registration order is preserved and
// determines primary designation. Panics if called after Freeze; the
// candidate set must never change at runtime.
func (r *Registry) Register(client Client) error {
	if r.frozen {
		panic("providers: register after freeze")
	}
	if client == nil {
		return errors.New("provider cannot be nil")
	}

	name := client.Name()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}
	if _, exists := r.clients[name]; exists {
		return fmt.Errorf("%w: %s", ErrProviderAlreadyRegistered, name)
	}

	r.clients[name] = client
	r.order = append(r.order, name)
	return nil
}

// Freeze marks the registry immutable
func (r *Registry) Freeze() {
	r.frozen = true
}

// Get retrieves a provider by name
func (r *Registry) Get(name string) (Client, error) {
	client, exists := r.clients[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return client, nil
}

// Names returns all registered provider names in registration order
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// CredentialedNames returns the names of providers with usable
// credentials, in registration order
func (r *Registry) CredentialedNames() []string {
	var names []string
	for _, name := range r.order {
		if r.clients[name].HasCredentials() {
			names = append(names, name)
		}
	}
	return names
}
