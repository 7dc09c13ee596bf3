package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	stdslog "log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/casseq"
	etcdbackend "github.com/unkn0wn-root/casseq/backend/etcd"
	localbackend "github.com/unkn0wn-root/casseq/backend/local"
	redisbackend "github.com/unkn0wn-root/casseq/backend/redis"
	slogadapter "github.com/unkn0wn-root/casseq/log/slog"
)

// etcdDefaultEndpoint stands in when --backend etcd is picked without an
// endpoint; the library default is a Redis port.
const etcdDefaultEndpoint = "127.0.0.1:2379"

// fileConfig mirrors the persistent flags. Flags win over file values.
type fileConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Backend     string `yaml:"backend"`
	Concurrency int    `yaml:"concurrency"`
}

func loadConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func dialerFor(kind string) (casseq.DialFunc, error) {
	switch kind {
	case "", "redis":
		return redisbackend.Dial, nil
	case "etcd":
		return etcdbackend.Dial, nil
	case "local":
		return localbackend.Dial, nil
	}
	return nil, fmt.Errorf("unknown backend %q (want redis, etcd or local)", kind)
}

// open resolves flags and config file into Options and dials the backend.
func open(ctx context.Context, flags *rootFlags) (casseq.Generator, error) {
	endpoint := flags.endpoint
	kind := flags.backendKind
	concurrency := flags.concurrency

	if flags.configPath != "" {
		cfg, err := loadConfig(flags.configPath)
		if err != nil {
			return nil, err
		}
		if endpoint == "" {
			endpoint = cfg.Endpoint
		}
		if kind == "" {
			kind = cfg.Backend
		}
		if concurrency == 0 {
			concurrency = cfg.Concurrency
		}
	}

	dial, err := dialerFor(kind)
	if err != nil {
		return nil, err
	}
	if kind == "etcd" && endpoint == "" {
		endpoint = etcdDefaultEndpoint
	}

	opts := casseq.Options{
		Endpoint:    endpoint,
		Dial:        dial,
		Concurrency: concurrency,
	}
	if flags.verbose {
		h := stdslog.NewTextHandler(os.Stderr, &stdslog.HandlerOptions{Level: stdslog.LevelDebug})
		opts.Logger = slogadapter.New(stdslog.New(h))
	}
	return casseq.New(ctx, opts)
}
