package main

import (
	"os"
	"reflect"

	"github.com/naoina/toml"

	"github.com/ethsync/blocksync"
)

// daemonConfig is the root of the TOML configuration file, mirroring
// gethConfig's "one struct per subsystem" layout: today there's just the
// protocol handler's own Config, but new subsystems (metrics, RPC) would
// get their own top-level table here rather than flattening into Config.
type daemonConfig struct {
	Sync blocksync.Config `toml:"sync"`
}

var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		return nil // unknown keys are ignored, same leniency as gethConfig
	},
}

func defaultDaemonConfig(protocolID string) daemonConfig {
	return daemonConfig{Sync: blocksync.DefaultConfig(protocolID)}
}

func loadConfig(file string, cfg *daemonConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	return tomlSettings.NewDecoder(f).Decode(cfg)
}
