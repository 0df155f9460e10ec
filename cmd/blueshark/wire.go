package main

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/PabloGalante/blue-shark/internal/adapters/credentials"
	"github.com/PabloGalante/blue-shark/internal/adapters/events"
	"github.com/PabloGalante/blue-shark/internal/adapters/llm"
	filestore "github.com/PabloGalante/blue-shark/internal/adapters/storage/file"
	firestorestore "github.com/PabloGalante/blue-shark/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/blue-shark/internal/adapters/storage/memory"
	redisstore "github.com/PabloGalante/blue-shark/internal/adapters/storage/redis"
	sqlitestore "github.com/PabloGalante/blue-shark/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/blue-shark/internal/app/conversation"
	"github.com/PabloGalante/blue-shark/internal/app/modes"
	"github.com/PabloGalante/blue-shark/internal/app/sessions"
	"github.com/PabloGalante/blue-shark/internal/config"
	"github.com/PabloGalante/blue-shark/internal/domain"
	"github.com/PabloGalante/blue-shark/internal/observability"
)

// app is the wired object graph shared by the subcommands.
type app struct {
	cfg     *config.Config
	store   *sessions.Store
	catalog *modes.Catalog
	svc     *conversation.Service
	bus     *events.Bus // nil unless live updates were requested

	// slotKeys lists every slot the backend holds; nil for single-slot
	// backends.
	slotKeys func(ctx context.Context) ([]string, error)

	redis   *goredis.Client
	closers []func() error
}

// buildApp wires storage, the generator and the conversation service.
// withEvents attaches the update bus, which only serve needs.
func buildApp(ctx context.Context, cfg *config.Config, withEvents bool) (*app, error) {
	a := &app{cfg: cfg}
	if err := a.wire(ctx, withEvents); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, withEvents bool) error {
	log := observability.Logger()
	cfg := a.cfg

	slot, err := a.openSlot(ctx)
	if err != nil {
		return err
	}

	var storeOpts []sessions.Option
	if withEvents {
		if err := a.openBus(ctx); err != nil {
			return err
		}
		storeOpts = append(storeOpts, sessions.WithPublisher(a.bus))
	}

	a.store = sessions.NewStore(slot, storeOpts...)
	if err := a.store.Load(ctx); err != nil {
		return err
	}

	if a.catalog, err = loadCatalog(cfg); err != nil {
		return err
	}

	if cfg.UseMockLLM {
		log.Info().Msg("[LLM] Using MOCK LLM client")
		a.svc = conversation.NewService(llm.NewMockLLM(), a.store, a.catalog)
		return nil
	}

	log.Info().Msg("[LLM] Using Gemini LLM client")
	selector := credentials.NewEnvSelector(cfg.APIKey, cfg.EnvFile)
	a.svc = conversation.NewService(llm.NewGeminiClient(selector), a.store, a.catalog,
		conversation.WithCredentialSelector(selector))
	return nil
}

// loadCatalog returns the built-in modes, or the override file when one is
// configured.
func loadCatalog(cfg *config.Config) (*modes.Catalog, error) {
	if cfg.ModesFile == "" {
		return modes.Default(), nil
	}
	catalog, err := modes.LoadFile(cfg.ModesFile)
	if err != nil {
		return nil, err
	}
	observability.Logger().Info().Str("path", cfg.ModesFile).Msg("[MODES] loaded mode catalog override")
	return catalog, nil
}

func (a *app) openSlot(ctx context.Context) (domain.Slot, error) {
	log := observability.Logger()
	cfg := a.cfg

	switch cfg.StorageBackend {
	case config.StorageFile:
		log.Info().Str("path", cfg.FilePath).Msg("[STORE] Using file storage")
		return filestore.NewSlot(cfg.FilePath)

	case config.StorageSQLite:
		log.Info().Str("path", cfg.SQLitePath).Msg("[STORE] Using SQLite storage")
		db, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		a.slotKeys = db.Keys
		return db.Slot(cfg.SlotKey), nil

	case config.StorageRedis:
		log.Info().Str("addr", cfg.RedisAddr).Msg("[STORE] Using Redis storage")
		client, err := a.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return redisstore.NewSlot(client, cfg.SlotKey)

	case config.StorageFirestore:
		log.Info().Str("project", cfg.GCPProjectID).Msg("[STORE] Using Firestore storage")
		fs, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, fs.Close)
		a.slotKeys = fs.Keys
		return fs.Slot(cfg.SlotKey), nil

	case config.StorageMemory:
		log.Info().Msg("[STORE] Using in-memory storage")
		return memstore.NewSlot(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}

func (a *app) openBus(ctx context.Context) error {
	switch a.cfg.EventsBackend {
	case config.EventsRedis:
		client, err := a.redisClient(ctx)
		if err != nil {
			return err
		}
		bus, err := events.NewRedis(client, "")
		if err != nil {
			return err
		}
		a.bus = bus
	default:
		a.bus = events.NewLocal("")
	}
	a.closers = append(a.closers, a.bus.Close)
	return nil
}

// redisClient shares one connection between the redis slot and the
// redis events transport.
func (a *app) redisClient(ctx context.Context) (*goredis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	client, err := redisstore.Dial(ctx, a.cfg.RedisAddr)
	if err != nil {
		return nil, err
	}
	a.redis = client
	a.closers = append(a.closers, client.Close)
	return client, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
