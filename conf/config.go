// Package conf loads the JSON configuration for the worker block
// engine and the master metadata engine, in the same style as the
// teacher's conf.DSConfig / conf.NNConfig (encoding/json, ReadConfig
// / WriteConfig methods). YAML config loading and the rest of the
// operational config surface (RPC ports, TLS, ...) stay out of scope
// per spec.md §1; these structs cover only the knobs of the core
// engines. MasterConfig.IdAllocBatchSize is decoded but not consumed:
// InodeTree always allocates ids in batches of its fixed
// idAllocBatchSize (1000).
package conf

import (
	"encoding/json"
	"os"
)

// TierConfig describes one storage tier's placement and budget.
type TierConfig struct {
	Type           string `json:"type"` // "memory" | "ssd" | "hdd"
	Path           string `json:"path"`
	CapacityBytes  uint64 `json:"capacityBytes"`
}

// WorkerConfig is the worker block engine's configuration.
type WorkerConfig struct {
	Tiers                      []TierConfig `json:"tiers"`
	CachePolicy                string       `json:"cachePolicy"` // "lru" | "lfu"
	MetaDbPath                 string       `json:"metaDbPath"`
	AutoEvictHighWatermark     float64      `json:"autoEvictHighWatermark"`
	AutoEvictLowWatermark      float64      `json:"autoEvictLowWatermark"`
	AutoPromoteAccessThreshold uint64       `json:"autoPromoteAccessThreshold"`
	DataMoverThreads           int          `json:"dataMoverThreads"`
	PageSize                   uint64       `json:"pageSize"`
	MaxPages                   int          `json:"maxPages"`
}

// DefaultWorkerConfig mirrors the defaults spec.md §4.4 documents.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		CachePolicy:                "lru",
		AutoEvictHighWatermark:     0.95,
		AutoEvictLowWatermark:      0.80,
		AutoPromoteAccessThreshold: 3,
		DataMoverThreads:           2,
		PageSize:                   1 * 1024 * 1024,
		MaxPages:                   1024,
	}
}

func (c *WorkerConfig) ReadConfig(file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(c)
}

func (c *WorkerConfig) WriteConfig(file string) error {
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(c)
}

// MasterConfig is the master metadata engine's configuration.
type MasterConfig struct {
	InodeDbPath        string `json:"inodeDbPath"`
	MountDbPath        string `json:"mountDbPath"`
	HeartbeatTimeoutMs int64  `json:"heartbeatTimeoutMs"`
	IdAllocBatchSize   uint64 `json:"idAllocBatchSize"`
}

// DefaultMasterConfig mirrors spec.md §5's stated heartbeat cadence.
func DefaultMasterConfig() MasterConfig {
	return MasterConfig{
		HeartbeatTimeoutMs: 30_000,
		IdAllocBatchSize:   1000,
	}
}

func (c *MasterConfig) ReadConfig(file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(c)
}

func (c *MasterConfig) WriteConfig(file string) error {
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(c)
}
