// Package config loads typed configuration structs from the process
// environment. A .env file in the working directory, when present, is read
// once before the first struct is parsed. Each struct type is parsed at most
// once and then served from a cache, so packages can call Load for their own
// config without coordinating with main.
//
//	type Config struct {
//		Addr string `env:"HTTP_ADDR" envDefault:":8080"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil { ... }
package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrNilPointer    = errors.New("config: nil pointer")
	ErrParsingConfig = errors.New("config: failed to parse environment")
)

type entry struct {
	once  sync.Once
	value any
	err   error
}

var (
	dotenvOnce sync.Once
	entries    sync.Map // reflect.Type -> *entry
)

// Load fills v from environment variables according to its `env` tags.
// Subsequent calls with the same type return the first parsed value.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	dotenvOnce.Do(func() {
		// a missing .env is not an error
		_ = godotenv.Load()
	})

	key := reflect.TypeFor[T]()
	raw, _ := entries.LoadOrStore(key, &entry{})
	e := raw.(*entry)
	e.once.Do(func() {
		var parsed T
		if err := env.Parse(&parsed); err != nil {
			e.err = errors.Join(ErrParsingConfig, err)
			return
		}
		e.value = parsed
	})
	if e.err != nil {
		return e.err
	}
	*v = e.value.(T)
	return nil
}

// MustLoad is Load that panics on failure. Intended for process startup.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("config: %T: %v", *v, err))
	}
}

// reset drops cached values; used by tests in this package.
func reset() {
	entries.Range(func(k, _ any) bool {
		entries.Delete(k)
		return true
	})
}
