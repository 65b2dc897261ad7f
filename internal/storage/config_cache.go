package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/domain"
)

var strategyConfigBucket = []byte("strategy_configs")

// ConfigCache is a read-mostly bbolt-backed mirror of the strategy_configs
// table, generalized from bitunix-bot's internal/storage.Store (a single
// BoltDB file with one bucket per record type). StrategyScheduler reads
// through this cache instead of hitting Postgres/SQLite on every decision
// cycle; the admin API writes through Repository and then updates or
// invalidates the cache entry directly.
type ConfigCache struct {
	db *bbolt.DB
}

// OpenConfigCache opens (creating if absent) the bbolt file at path.
func OpenConfigCache(path string) (*ConfigCache, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: opening config cache: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(strategyConfigBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: initializing config cache bucket: %w", err)
	}
	return &ConfigCache{db: db}, nil
}

func (c *ConfigCache) Close() error {
	return c.db.Close()
}

// Warm loads every row from the repository into the cache, run once at
// startup and after reconciliation seeds default strategies.
func (c *ConfigCache) Warm(repo *Repository) error {
	configs, err := repo.AllStrategyConfigs()
	if err != nil {
		return fmt.Errorf("storage: warming config cache: %w", err)
	}
	for _, cfg := range configs {
		if err := c.Put(cfg); err != nil {
			return err
		}
	}
	return nil
}

// Put inserts or overwrites one symbol's cached config.
func (c *ConfigCache) Put(cfg domain.StrategyConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("storage: marshaling cached strategy config: %w", err)
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(strategyConfigBucket).Put([]byte(cfg.Symbol), data)
	})
}

// Invalidate removes a symbol's cached config, e.g. after an admin DELETE.
func (c *ConfigCache) Invalidate(symbol string) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(strategyConfigBucket).Delete([]byte(symbol))
	})
}

// Get returns a cached config, or ok=false on a cache miss.
func (c *ConfigCache) Get(symbol string) (cfg domain.StrategyConfig, ok bool) {
	_ = c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(strategyConfigBucket).Get([]byte(symbol))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return err
		}
		ok = true
		return nil
	})
	return cfg, ok
}

// Active returns every cached config with Active set, the read path
// StrategyScheduler's ActiveConfigs uses instead of querying the repository
// directly.
func (c *ConfigCache) Active() ([]domain.StrategyConfig, error) {
	var out []domain.StrategyConfig
	err := c.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(strategyConfigBucket).ForEach(func(_, data []byte) error {
			var cfg domain.StrategyConfig
			if err := json.Unmarshal(data, &cfg); err != nil {
				return err
			}
			if cfg.Active {
				out = append(out, cfg)
			}
			return nil
		})
	})
	return out, err
}
