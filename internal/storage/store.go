package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/redis/go-redis/v9"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/config"
)

// Object kinds written by the driver.
const (
	KindResults     = "results"
	KindOutcomes    = "outcomes"
	KindDescriptors = "descriptors"
	KindComponents  = "components"
)

// ErrInvalidKey is returned for empty kinds or names.
var ErrInvalidKey = errors.New("object kind and name must not be empty")

// ObjectStore is a key/value store for serialized objects, grouped by kind.
// Load returns an *api.NotFoundError for unknown objects.
type ObjectStore interface {
	Save(ctx context.Context, kind, name string, data []byte) error
	Load(ctx context.Context, kind, name string) ([]byte, error)
	Delete(ctx context.Context, kind, name string) error
	List(ctx context.Context, kind string) ([]string, error)
	Close() error
}

// Open creates the store selected by cfg.
func Open(cfg config.StorageConfig) (ObjectStore, error) {
	switch cfg.Type {
	case "", config.StorageNone:
		return NopStore{}, nil
	case config.StorageFile:
		return NewFileStore(cfg.Path)
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return NewRedisStore(client, WithPrefix(cfg.Redis.Prefix), WithTTL(cfg.Redis.TTL)), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// SaveJSON stores v as JSON.
func SaveJSON(ctx context.Context, s ObjectStore, kind, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", kind, name, err)
	}
	return s.Save(ctx, kind, name, data)
}

// LoadJSON decodes the stored object into v.
func LoadJSON(ctx context.Context, s ObjectStore, kind, name string, v any) error {
	data, err := s.Load(ctx, kind, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s/%s: %w", kind, name, err)
	}
	return nil
}

func checkKey(kind, name string) error {
	if kind == "" || name == "" {
		return ErrInvalidKey
	}
	return nil
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeName makes name safe to use as a file name or key segment.
func sanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

func notFound(kind, name string) error {
	return api.NewObjectNotFoundError(kind + "/" + name)
}

// NopStore discards everything. It backs storage type "none".
type NopStore struct{}

func (NopStore) Save(context.Context, string, string, []byte) error { return nil }

func (NopStore) Load(_ context.Context, kind, name string) ([]byte, error) {
	return nil, notFound(kind, name)
}

func (NopStore) Delete(_ context.Context, kind, name string) error {
	return notFound(kind, name)
}

func (NopStore) List(context.Context, string) ([]string, error) { return nil, nil }

func (NopStore) Close() error { return nil }
