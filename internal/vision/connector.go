package vision

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// ConnectorConfig describes how to reach the hosted models.
type ConnectorConfig struct {
	APIKey string
	// Backend is "vertex" or "gemini".
	Backend  string
	Project  string
	Location string
	// BaseURL replaces the public endpoint, e.g. for a regional proxy.
	BaseURL string
}

// Connector lazily builds one shared genai client. Construction is deferred
// to the first call so a missing credential only surfaces when a model is
// actually used.
type Connector struct {
	cfg    ConnectorConfig
	mu     sync.Mutex
	client *genai.Client
}

// NewConnector returns a connector for cfg.
func NewConnector(cfg ConnectorConfig) *Connector {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Project = strings.TrimSpace(cfg.Project)
	cfg.Location = strings.TrimSpace(cfg.Location)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	return &Connector{cfg: cfg}
}

// Client returns the cached client, creating it on first use.
func (c *Connector) Client(ctx context.Context) (*genai.Client, error) {
	if c == nil {
		return nil, ErrMissingCredentials
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	clientCfg, err := c.clientConfig()
	if err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("vision: create genai client: %w", err)
	}
	c.client = client
	return client, nil
}

func (c *Connector) clientConfig() (*genai.ClientConfig, error) {
	vertex := !strings.EqualFold(c.cfg.Backend, "gemini")
	switch {
	case vertex && c.cfg.Project != "":
		return &genai.ClientConfig{
			Backend:     genai.BackendVertexAI,
			Project:     c.cfg.Project,
			Location:    c.cfg.Location,
			HTTPOptions: genai.HTTPOptions{BaseURL: c.cfg.BaseURL},
		}, nil
	case c.cfg.APIKey != "":
		backend := genai.BackendGeminiAPI
		if vertex {
			backend = genai.BackendVertexAI
		}
		return &genai.ClientConfig{
			APIKey:      c.cfg.APIKey,
			Backend:     backend,
			HTTPOptions: genai.HTTPOptions{BaseURL: c.cfg.BaseURL},
		}, nil
	default:
		return nil, ErrMissingCredentials
	}
}
