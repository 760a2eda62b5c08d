// Command worker runs the tiered block-store engine for one node:
// usage: worker path/to/config.json ufs-root-dir
package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/anycachefs/anycache"
	"github.com/anycachefs/anycache/conf"
	"github.com/anycachefs/anycache/logx"
	"github.com/anycachefs/anycache/metrics"
	"github.com/anycachefs/anycache/ufs"
	"github.com/anycachefs/anycache/worker"
)

func usage(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
	}
	fmt.Fprintf(os.Stderr, "usage: worker path/to/config.json ufs-root-dir\n")
}

func main() {
	args := os.Args[1:]
	if len(args) < 2 {
		usage(nil)
		os.Exit(1)
	}
	cfg := conf.DefaultWorkerConfig()
	if err := cfg.ReadConfig(args[0]); err != nil {
		usage(err)
		os.Exit(1)
	}

	log := logx.New("worker")
	reg := prometheus.NewRegistry()

	tiers := make([]*worker.StorageTier, 0, len(cfg.Tiers))
	for _, tc := range cfg.Tiers {
		tier, err := buildTier(tc)
		if err != nil {
			log.Warnf("skipping tier %s: %v", tc.Path, err)
			continue
		}
		tiers = append(tiers, tier)
	}
	if len(tiers) == 0 {
		usage(fmt.Errorf("no usable tiers in config"))
		os.Exit(1)
	}

	cache := worker.NewCacheManager(cfg.CachePolicy)

	var meta worker.MetaStore
	if cfg.MetaDbPath != "" {
		m, err := worker.OpenLevelMetaStore(cfg.MetaDbPath)
		if err != nil {
			usage(err)
			os.Exit(1)
		}
		meta = m
	} else {
		meta = worker.NewInMemoryMetaStore()
	}

	store := worker.NewBlockStore(tiers, cache, meta, worker.BlockStoreOptions{
		HighWatermark:              cfg.AutoEvictHighWatermark,
		LowWatermark:               cfg.AutoEvictLowWatermark,
		AutoPromoteAccessThreshold: cfg.AutoPromoteAccessThreshold,
		Metrics:                    metrics.NewBlockStoreMetrics(reg),
		Log:                        log,
	})
	if err := store.Recover(); err != nil {
		log.Warnf("recover: %v", err)
	}

	defaultUFS := ufs.NewLocal(args[1])
	mover := worker.NewDataMover(store, defaultUFS, cfg.DataMoverThreads, metrics.NewDataMoverMetrics(reg), log)
	defer mover.Stop()

	fetchFromBlockStore := func(fileId anycache.FileId, pageIdx uint64) ([]byte, error) {
		buf := make([]byte, cfg.PageSize)
		blockId := anycache.MakeBlockId(anycache.InodeId(fileId), uint32(pageIdx))
		n, err := store.ReadBlock(blockId, buf, 0)
		if err != nil {
			return nil, err
		}
		return buf[:n], nil
	}
	_ = worker.NewPageStore(cfg.PageSize, cfg.MaxPages, fetchFromBlockStore, metrics.NewPageStoreMetrics(reg))

	log.Infof("worker started with %d tiers, %d data mover threads", len(tiers), cfg.DataMoverThreads)
	select {}
}

func buildTier(tc conf.TierConfig) (*worker.StorageTier, error) {
	tierType, err := tierTypeOf(tc.Type)
	if err != nil {
		return nil, err
	}
	if tierType == anycache.TierMemory {
		return worker.NewMemoryTier(tierType, tc.CapacityBytes), nil
	}
	return worker.NewDiskTier(tierType, tc.Path, tc.CapacityBytes)
}

func tierTypeOf(s string) (anycache.TierType, error) {
	switch s {
	case "memory":
		return anycache.TierMemory, nil
	case "ssd":
		return anycache.TierSSD, nil
	case "hdd":
		return anycache.TierHDD, nil
	default:
		return 0, fmt.Errorf("unknown tier type %q", s)
	}
}
