// Package daemon composes the long-running process: gateway client, caches,
// aggregation pipeline and the local HTTP API, wired through fx.
package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abda11atar3k/leblebbot/internal/bus"
	"github.com/abda11atar3k/leblebbot/internal/cache"
	"github.com/abda11atar3k/leblebbot/internal/chats"
	"github.com/abda11atar3k/leblebbot/internal/config"
	"github.com/abda11atar3k/leblebbot/internal/gateway"
	"github.com/abda11atar3k/leblebbot/internal/httpapi"
	"github.com/abda11atar3k/leblebbot/internal/instance"
	"github.com/abda11atar3k/leblebbot/internal/lock"
	"github.com/abda11atar3k/leblebbot/internal/logging"
	"github.com/abda11atar3k/leblebbot/internal/messages"
	"github.com/abda11atar3k/leblebbot/internal/status"
)

// Params holds the resolved instance configuration passed to the fx module.
type Params struct {
	InstanceName string
	Config       *config.Config
	Listen       string // optional override for testing; empty = use config
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideCaches,
			provideGatewayClient,
			provideBanlist,
			provideAggregator,
			provideMerger,
			provideHandler,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(instance.LogPath(p.InstanceName), p.InstanceName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := instance.EnsureDir(p.InstanceName); err != nil {
		return nil, err
	}
	logger.Info("acquiring instance lock", zap.String("instance", p.InstanceName))
	l, err := lock.Acquire(instance.Dir(p.InstanceName))
	if err != nil {
		return nil, err
	}
	logger.Info("instance lock acquired")
	return l, nil
}

func provideCaches(p Params) *cache.Manager {
	c := p.Config.Cache
	return cache.NewManager(cache.TTLs{
		Contacts: c.ContactsTTL.Duration,
		Subject:  c.SubjectsTTL.Duration,
		Picture:  c.PicturesTTL.Duration,
		Page:     c.PagesTTL.Duration,
	})
}

func provideGatewayClient(p Params, logger *zap.Logger) *gateway.Client {
	g := p.Config.Gateway
	return gateway.NewClient(g.BaseURL, g.APIKey, g.Instance, logger)
}

func provideBanlist(p Params) chats.Banlist {
	if len(p.Config.Chats.BannedNumbers) == 0 {
		return chats.NopBanlist{}
	}
	return chats.NewStaticBanlist(p.Config.Chats.BannedNumbers)
}

func provideAggregator(client *gateway.Client, caches *cache.Manager, banlist chats.Banlist, p Params, logger *zap.Logger) *chats.Aggregator {
	return chats.NewAggregator(client, caches, banlist, p.Config.Chats.SelfExclusions, logger)
}

func provideMerger(client *gateway.Client, caches *cache.Manager, logger *zap.Logger) *messages.Merger {
	return messages.NewMerger(client, caches, logger)
}

func provideHandler(agg *chats.Aggregator, merger *messages.Merger, caches *cache.Manager, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *httpapi.Handler {
	return httpapi.NewHandler(agg, merger, caches, machine, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, caches *cache.Manager, machine *status.Machine, b *bus.Bus, client *gateway.Client, logger *zap.Logger) {
	var stopWatcher func()
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Flush caches whenever the session drops; stale entries must not
			// survive a reconnect.
			stopWatcher = watchStatus(b, caches, logger)

			// Start HTTP server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			// Seed the state machine from the gateway's current view.
			go func() {
				info, err := client.FetchInstanceInfo(context.Background())
				if err != nil {
					logger.Warn("initial instance probe failed", zap.Error(err))
					return
				}
				if next, ok := status.FromGatewayState(info.ConnectionStatus); ok {
					_ = machine.Transition(next)
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			if stopWatcher != nil {
				stopWatcher()
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

// watchStatus subscribes to status transitions and flushes every cache domain
// when the session disconnects or logs out. Returns an unsubscribe function.
func watchStatus(b *bus.Bus, caches *cache.Manager, logger *zap.Logger) func() {
	ch, unsub := b.Subscribe("status.", 16)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case evt, ok := <-ch:
				if !ok {
					return
				}
				change, ok := evt.Payload.(status.StatusChange)
				if !ok {
					continue
				}
				if change.To == status.Disconnected || change.To == status.LoggedOut {
					caches.FlushAll()
					logger.Info("session dropped, caches flushed",
						zap.String("from", string(change.From)),
						zap.String("to", string(change.To)))
				}
			case <-done:
				return
			}
		}
	}()
	return func() {
		close(done)
		unsub()
	}
}
