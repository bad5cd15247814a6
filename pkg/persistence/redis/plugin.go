package redis

import (
	"context"
	"encoding/json"

	"github.com/osvaldoandrade/dossier/internal/repository"
	"github.com/osvaldoandrade/dossier/pkg/persistence"

	"github.com/go-redis/redis/v8"
)

// Config holds Redis-specific configuration
type Config struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
}

// Plugin implements PluginPersistence for Redis/KVRocks
type Plugin struct {
	client     *redis.Client
	ownsClient bool
	resultRepo repository.ResultRepository
	uploadRepo repository.UploadRepository
	corpusRepo repository.CorpusRepository
}

// NewPlugin creates a new Redis persistence plugin
func NewPlugin(config persistence.PluginConfig) (persistence.PluginPersistence, error) {
	var cfg Config
	if err := json.Unmarshal(config.Config, &cfg); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
	})
	p := NewWithClient(client, config)
	p.ownsClient = true
	return p, nil
}

// NewWithClient builds the plugin on an existing client, which the caller
// keeps ownership of.
func NewWithClient(client *redis.Client, config persistence.PluginConfig) *Plugin {
	return &Plugin{
		client:     client,
		resultRepo: repository.NewResultRepository(client, config.Timezone),
		uploadRepo: repository.NewUploadRepository(client, config.Timezone),
		corpusRepo: repository.NewCorpusRepository(client, config.Timezone),
	}
}

func (p *Plugin) ResultStorage() persistence.ResultStorage {
	return &resultStorageAdapter{repo: p.resultRepo}
}

func (p *Plugin) UploadStorage() persistence.UploadStorage {
	return &uploadStorageAdapter{repo: p.uploadRepo}
}

func (p *Plugin) CorpusStorage() persistence.CorpusStorage {
	return &corpusStorageAdapter{repo: p.corpusRepo}
}

// Health checks if Redis is healthy
func (p *Plugin) Health(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close releases the Redis connection when the plugin created it.
func (p *Plugin) Close() error {
	if !p.ownsClient {
		return nil
	}
	return p.client.Close()
}

func init() {
	persistence.RegisterProvider("redis", NewPlugin)
}
