// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/consul"
	"github.com/knadh/koanf/providers/etcd"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// SourceType identifies where a config document is loaded from.
type SourceType string

const (
	SourceFile      SourceType = "file"
	SourceConsul    SourceType = "consul"
	SourceEtcd      SourceType = "etcd"
	SourceZookeeper SourceType = "zookeeper"
)

// ParseSourceType converts a string to a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file", "":
		return SourceFile, nil
	case "consul":
		return SourceConsul, nil
	case "etcd":
		return SourceEtcd, nil
	case "zookeeper", "zk":
		return SourceZookeeper, nil
	default:
		return "", fmt.Errorf("invalid config source: %s (valid: file, consul, etcd, zookeeper)", s)
	}
}

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	Type SourceType

	// Path is the config file path (SourceFile) or key path (others).
	Path string

	Endpoints []string

	// Watch starts a background goroutine calling OnChange whenever the
	// backing source reports a change.
	Watch    bool
	OnChange func(*Config) error
}

// Loader loads a Config document from file, Consul, etcd, or
// Zookeeper, expands ${VAR} environment references, and applies
// defaults/validation.
type Loader struct {
	koanf    *koanf.Koanf
	options  LoaderOptions
	parser   *yaml.YAML
	stopChan chan struct{}
}

// NewLoader constructs a Loader for the given options.
func NewLoader(opts LoaderOptions) (*Loader, error) {
	if opts.Type == "" {
		opts.Type = SourceFile
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if len(opts.Endpoints) == 0 {
		switch opts.Type {
		case SourceConsul:
			opts.Endpoints = []string{"localhost:8500"}
		case SourceEtcd:
			opts.Endpoints = []string{"localhost:2379"}
		case SourceZookeeper:
			opts.Endpoints = []string{"localhost:2181"}
		}
	}
	return &Loader{
		koanf:    koanf.New("."),
		options:  opts,
		parser:   yaml.Parser(),
		stopChan: make(chan struct{}),
	}, nil
}

// Load reads, expands, and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	provider, err := l.newProvider()
	if err != nil {
		return nil, err
	}

	if err := l.koanf.Load(provider, l.parserFor()); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", l.options.Type, err)
	}
	if err := l.expandEnvVars(); err != nil {
		return nil, fmt.Errorf("expanding environment variables: %w", err)
	}

	cfg, err := l.unmarshal()
	if err != nil {
		return nil, err
	}

	if l.options.Watch {
		go l.watch(provider)
	}
	return cfg, nil
}

func (l *Loader) newProvider() (koanf.Provider, error) {
	switch l.options.Type {
	case SourceFile:
		return file.Provider(l.options.Path), nil

	case SourceConsul:
		consulConfig := api.DefaultConfig()
		consulConfig.Address = l.options.Endpoints[0]
		return consul.Provider(consul.Config{Cfg: consulConfig, Key: l.options.Path}), nil

	case SourceEtcd:
		return etcd.Provider(etcd.Config{
			Endpoints:   l.options.Endpoints,
			DialTimeout: 5 * time.Second,
			Key:         l.options.Path,
		}), nil

	case SourceZookeeper:
		return NewZookeeperProvider(l.options.Endpoints, l.options.Path)

	default:
		return nil, fmt.Errorf("unsupported config source: %s", l.options.Type)
	}
}

func (l *Loader) parserFor() koanf.Parser {
	if l.options.Type == SourceFile || l.options.Type == SourceZookeeper {
		return l.parser
	}
	return nil
}

// watcher is implemented by koanf providers that support reactive
// change notification (the file, consul, etcd, and zookeeper
// providers all do).
type watcher interface {
	Watch(cb func(event interface{}, err error)) error
}

func (l *Loader) watch(provider koanf.Provider) {
	w, ok := provider.(watcher)
	if !ok {
		log.Printf("config: provider %s does not support watching", l.options.Type)
		return
	}

	err := w.Watch(func(event interface{}, err error) {
		select {
		case <-l.stopChan:
			return
		default:
		}
		if err != nil {
			log.Printf("config: watch error: %v", err)
			return
		}

		if err := l.koanf.Load(provider, l.parserFor()); err != nil {
			log.Printf("config: reload failed: %v", err)
			return
		}
		if err := l.expandEnvVars(); err != nil {
			log.Printf("config: reload env expansion failed: %v", err)
			return
		}
		cfg, err := l.unmarshal()
		if err != nil {
			log.Printf("config: reload processing failed: %v", err)
			return
		}
		if l.options.OnChange != nil {
			if err := l.options.OnChange(cfg); err != nil {
				log.Printf("config: reload callback failed: %v", err)
			}
		}
	})
	if err != nil {
		log.Printf("config: watch stopped: %v", err)
	}
}

func (l *Loader) unmarshal() (*Config, error) {
	cfg := &Config{}
	if err := l.koanf.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (l *Loader) expandEnvVars() error {
	expanded := ExpandEnvVarsInData(l.koanf.Raw())
	expandedMap, ok := expanded.(map[string]interface{})
	if !ok {
		return fmt.Errorf("unexpected type after env var expansion")
	}
	next := koanf.New(".")
	if err := next.Load(confmap.Provider(expandedMap, "."), nil); err != nil {
		return fmt.Errorf("reloading expanded config: %w", err)
	}
	l.koanf = next
	return nil
}

// Stop halts the watcher goroutine started by Load when Watch is set.
func (l *Loader) Stop() {
	close(l.stopChan)
}

// SetOnChange replaces the reload callback.
func (l *Loader) SetOnChange(cb func(*Config) error) {
	l.options.OnChange = cb
}

// Load is a convenience wrapper that constructs a Loader and loads once.
func Load(opts LoaderOptions) (*Config, error) {
	loader, err := NewLoader(opts)
	if err != nil {
		return nil, err
	}
	return loader.Load()
}
