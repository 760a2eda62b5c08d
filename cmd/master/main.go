// Command master runs the namespace/metadata engine: usage: master
// path/to/config.json
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/anycachefs/anycache/conf"
	"github.com/anycachefs/anycache/logx"
	"github.com/anycachefs/anycache/master"
)

func usage(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
	}
	fmt.Fprintf(os.Stderr, "usage: master path/to/config.json\n")
}

func main() {
	args := os.Args[1:]
	if len(args) < 1 {
		usage(nil)
		os.Exit(1)
	}
	cfg := conf.DefaultMasterConfig()
	if err := cfg.ReadConfig(args[0]); err != nil {
		usage(err)
		os.Exit(1)
	}

	log := logx.New("master")

	store, err := master.OpenInodeStore(cfg.InodeDbPath)
	if err != nil {
		usage(err)
		os.Exit(1)
	}
	defer store.Close()

	tree, err := master.NewTree(store)
	if err != nil {
		usage(err)
		os.Exit(1)
	}

	mounts, err := master.OpenPersistentMountTable(cfg.MountDbPath)
	if err != nil {
		usage(err)
		os.Exit(1)
	}
	defer mounts.Close()

	workers := master.NewWorkerManager(cfg.HeartbeatTimeoutMs)
	locations := master.NewBlockLocationMap()

	checker := master.NewHeartbeatChecker(workers, locations, time.Duration(cfg.HeartbeatTimeoutMs)*time.Millisecond/3, log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := checker.Run(ctx); err != nil && ctx.Err() == nil {
			log.Warnf("heartbeat checker stopped: %v", err)
		}
	}()

	log.Infof("master started, %d directories loaded, %d mount points", tree.DirCount(), len(mounts.GetMountPoints()))
	select {}
}
