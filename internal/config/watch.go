package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/cfbotcore/pipeline/internal/log"
	"github.com/cfbotcore/pipeline/internal/pubsub"
)

// Reloaded is the payload published to the Reloader's broker whenever
// the on-disk config file changes and is re-read successfully.
type Reloaded struct {
	Config Config
}

// Reloader watches a config file for changes, debounces writes, and
// republishes the parsed Config on the returned broker.
type Reloader struct {
	v        *viper.Viper
	path     string
	debounce time.Duration
	broker   *pubsub.Broker[Reloaded]
	fsw      *fsnotify.Watcher
	done     chan struct{}
}

// NewReloader constructs a Reloader for the config file v was loaded
// from (v.ConfigFileUsed()).
func NewReloader(v *viper.Viper) (*Reloader, error) {
	path := v.ConfigFileUsed()
	if path == "" {
		return nil, fmt.Errorf("config: reloader requires a config file to watch")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create fsnotify watcher: %w", err)
	}

	return &Reloader{
		v:        v,
		path:     path,
		debounce: 200 * time.Millisecond,
		broker:   pubsub.NewBroker[Reloaded](),
		fsw:      fsw,
		done:     make(chan struct{}),
	}, nil
}

// Broker returns the broker Reloaded events are published on.
func (r *Reloader) Broker() *pubsub.Broker[Reloaded] { return r.broker }

// Start begins watching the config file's directory for changes.
func (r *Reloader) Start() error {
	dir := filepath.Dir(r.path)
	if err := r.fsw.Add(dir); err != nil {
		return fmt.Errorf("config: watch directory %s: %w", dir, err)
	}
	log.Info(log.CatConfig, "watching config for changes", "path", r.path)
	go r.loop()
	return nil
}

// Stop terminates the watcher.
func (r *Reloader) Stop() error {
	close(r.done)
	r.broker.Close()
	return r.fsw.Close()
}

func (r *Reloader) loop() {
	var timer *time.Timer
	var pending bool

	for {
		select {
		case event, ok := <-r.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(r.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(r.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(r.debounce)
			}
			pending = true

		case <-timerC(timer):
			if !pending {
				continue
			}
			pending = false
			r.reload()

		case err, ok := <-r.fsw.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatConfig, "config watcher error", err)

		case <-r.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (r *Reloader) reload() {
	if err := r.v.ReadInConfig(); err != nil {
		log.ErrorErr(log.CatConfig, "failed to re-read config", err, "path", r.path)
		return
	}

	var cfg Config
	if err := r.v.Unmarshal(&cfg); err != nil {
		log.ErrorErr(log.CatConfig, "failed to unmarshal reloaded config", err, "path", r.path)
		return
	}
	if err := Validate(cfg); err != nil {
		log.ErrorErr(log.CatConfig, "reloaded config failed validation, keeping previous", err)
		return
	}

	log.Info(log.CatConfig, "config reloaded", "path", r.path)
	r.broker.Publish(pubsub.UpdatedEvent, Reloaded{Config: cfg})
}
