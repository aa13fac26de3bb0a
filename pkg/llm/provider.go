package llm

import (
	"sync"

	"github.com/contentlens/contentlens/pkg/config"
)

// Provider adapts the neutral completion request to one provider's wire
// format. Adapters are stateless apart from their API-key source.
type Provider interface {
	// Name returns the provider identifier ("anthropic", "openai").
	Name() string

	// BuildURL constructs the full API endpoint URL. An empty baseURL uses
	// the provider's public endpoint.
	BuildURL(baseURL string) string

	// Headers returns provider-specific headers including authentication.
	Headers() map[string]string

	// BuildRequestBody creates the JSON request body.
	BuildRequestBody(model string, req CompletionRequest) ([]byte, error)

	// ParseResponse extracts the neutral response from provider JSON.
	ParseResponse(body []byte) (*CompletionResponse, error)
}

var (
	providerMu       sync.RWMutex
	providerRegistry = make(map[config.ProviderType]Provider)
)

// RegisterProvider adds an adapter to the registry, replacing any existing
// adapter for the same type.
func RegisterProvider(kind config.ProviderType, p Provider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providerRegistry[kind] = p
}

// GetProvider retrieves the adapter for a provider type, or nil.
func GetProvider(kind config.ProviderType) Provider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return providerRegistry[kind]
}
