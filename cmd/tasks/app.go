package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tasktracker/api"
	"tasktracker/config"
	"tasktracker/storage"
	"tasktracker/store"
	"tasktracker/syncer"
)

var errTaskNotFound = errors.New("task not found")

type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
	logger  *log.Logger
	store   *store.Store
	broker  *api.Broker
	closers []func()

	stdin   io.ReadCloser
	confirm func(label string) (bool, error)
}

func newApp() *app {
	a := &app{
		v:      config.New(),
		logger: log.New(),
		broker: api.NewBroker(),
		stdin:  os.Stdin,
	}
	a.confirm = a.promptConfirm
	return a
}

// newRootCommand creates the root cobra command
func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "tasks",
		Short:         "Keep a personal task list",
		Long:          "tasks keeps a personal task list with filtering, search and sorting, stored in a single snapshot slot.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "Config file (default ./tasks.yaml or $HOME/.config/tasks/tasks.yaml)")
	flags.String("backend", config.BackendFile, "Storage backend: file, redis, table or memory")
	flags.String("data-dir", ".tasks", "Directory for the file backend")
	flags.BoolP("debug", "d", false, "Debug logging")
	_ = a.v.BindPFlag("backend", flags.Lookup("backend"))
	_ = a.v.BindPFlag("data_dir", flags.Lookup("data-dir"))
	_ = a.v.BindPFlag("debug", flags.Lookup("debug"))

	root.AddCommand(newAddCommand(a))
	root.AddCommand(newEditCommand(a))
	root.AddCommand(newToggleCommand(a))
	root.AddCommand(newRemoveCommand(a))
	root.AddCommand(newListCommand(a))
	root.AddCommand(newStatsCommand(a))
	root.AddCommand(newServeCommand(a))

	return root
}

// open loads configuration, builds the backend and sync pipeline and reads
// the persisted snapshot.
func (a *app) open(ctx context.Context) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if cfg.Debug {
		a.logger.SetLevel(log.DebugLevel)
	}

	persister, err := a.buildPersister(ctx)
	if err != nil {
		a.close()
		return err
	}
	dispatcher, err := a.buildDispatcher(ctx)
	if err != nil {
		a.close()
		return err
	}

	a.store = store.New(persister, dispatcher, a.logger, cfg.PersistTimeout)
	if err := a.store.Load(ctx); err != nil {
		a.logger.WithError(err).Warn("continuing with an empty task list")
	}
	return nil
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
		a.store = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) buildPersister(ctx context.Context) (store.Persister, error) {
	cfg := a.cfg
	switch cfg.Backend {
	case config.BackendFile:
		fs, err := storage.NewFileStore(cfg.DataDir, cfg.StorageKey, a.logger)
		if err != nil {
			return nil, fmt.Errorf("file storage: %w", err)
		}
		a.logger.WithField("path", fs.Path()).Debug("using file storage")
		return fs, nil
	case config.BackendRedis:
		client, err := a.redisClient()
		if err != nil {
			return nil, err
		}
		return storage.NewRedisStore(client, cfg.StorageKey, a.logger), nil
	case config.BackendTable:
		ts, err := storage.NewTableStore(cfg.StorageConnectionString, cfg.TasksTable, cfg.StorageKey, a.logger)
		if err != nil {
			return nil, fmt.Errorf("table storage: %w", err)
		}
		if err := ts.EnsureTable(ctx); err != nil {
			return nil, fmt.Errorf("table storage: %w", err)
		}
		return ts, nil
	case config.BackendMemory:
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func (a *app) buildDispatcher(ctx context.Context) (store.Dispatcher, error) {
	var s syncer.Syncer = syncer.Stub{}
	switch a.cfg.SyncMode {
	case config.SyncRedis:
		client, err := a.redisClient()
		if err != nil {
			return nil, err
		}
		s = syncer.NewRedisPublisher(client, a.cfg.SyncChannel)
	case config.SyncQueue:
		qs, err := syncer.NewQueueSender(a.cfg.StorageConnectionString, a.cfg.SyncQueue)
		if err != nil {
			return nil, fmt.Errorf("queue sync: %w", err)
		}
		if err := qs.EnsureQueue(ctx); err != nil {
			return nil, fmt.Errorf("queue sync: %w", err)
		}
		a.logger.WithField("queue", a.cfg.SyncQueue).Debug("syncing snapshots to storage queue")
		s = qs
	}
	return syncer.NewDispatcher(syncer.Fanout(s, a.broker), syncer.Config{
		Workers:        a.cfg.SyncWorkers,
		Buffer:         a.cfg.SyncBuffer,
		Timeout:        a.cfg.SyncTimeout,
		HandoffTimeout: a.cfg.SyncHandoffTimeout,
	}, a.logger), nil
}

func (a *app) redisClient() (*redis.Client, error) {
	opts, err := storage.ParseRedisOptions(a.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	client := redis.NewClient(opts)
	a.closers = append(a.closers, func() { _ = client.Close() })
	return client, nil
}

// resolveID accepts a full id or a unique id prefix.
func (a *app) resolveID(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errTaskNotFound
	}
	if _, ok := a.store.Get(ref); ok {
		return ref, nil
	}
	var match string
	for _, t := range a.store.Tasks() {
		if !strings.HasPrefix(t.ID, ref) {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("id prefix %q matches more than one task", ref)
		}
		match = t.ID
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", errTaskNotFound, ref)
	}
	return match, nil
}

// persisted reports a failed snapshot write. The change only lived in
// memory, so a one-shot command must not report success.
func (a *app) persisted() error {
	if err := a.store.LastPersistError(); err != nil {
		return fmt.Errorf("change not saved: %w", err)
	}
	return nil
}

func (a *app) promptConfirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Stdin:     a.stdin,
	}
	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
