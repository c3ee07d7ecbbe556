package main

import (
	"fmt"
	"os"

	"github.com/rasky/pargz"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk form of the options, loaded with --config.
// Every field is optional; command line flags that were set explicitly take
// precedence.
type fileConfig struct {
	Codec     string `yaml:"codec"`
	Level     *int   `yaml:"level"`
	BlockSize int    `yaml:"block_size"`
	Workers   int    `yaml:"workers"`
	ReadSize  int    `yaml:"read_size"`
	Rsyncable *bool  `yaml:"rsyncable"`
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// apply copies the configured values into opts, skipping those whose flag
// was given on the command line.
func (cfg *fileConfig) apply(opts *pargz.Options, changed func(name string) bool) error {
	if cfg.Codec != "" && !changed("codec") {
		c, err := pargz.CodecByName(cfg.Codec)
		if err != nil {
			return err
		}
		opts.Codec = c
	}
	if cfg.Level != nil && !levelFlagSet(changed) {
		opts.Level = *cfg.Level
	}
	if cfg.BlockSize != 0 && !changed("block-size") {
		opts.ChunkSize = cfg.BlockSize
	}
	if cfg.Workers != 0 && !changed("workers") {
		opts.Workers = cfg.Workers
	}
	if cfg.ReadSize != 0 {
		opts.ReadSize = cfg.ReadSize
	}
	if cfg.Rsyncable != nil && !changed("rsyncable") {
		opts.Rsyncable = *cfg.Rsyncable
	}
	return nil
}

func levelFlagSet(changed func(name string) bool) bool {
	for _, name := range []string{"0", "fast", "2", "3", "4", "5", "6", "7", "8", "best"} {
		if changed(name) {
			return true
		}
	}
	return false
}
