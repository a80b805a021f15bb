package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"notification-engine/internal/config"
	hrest "notification-engine/internal/handler/http"
	wshandler "notification-engine/internal/handler/ws"
	"notification-engine/internal/ratelimit"
	"notification-engine/internal/repository"
	"notification-engine/internal/router"
	"notification-engine/internal/usecase"
	ws "notification-engine/pkg/notifier/ws"
	"notification-engine/pkg/notifier/push"
)

// Server bundles the HTTP server with the pieces that need an ordered
// shutdown: the dispatcher's in-flight pushes and the limiter sweeper.
type Server struct {
	HTTP       *http.Server
	dispatcher *usecase.Dispatcher
	limiter    *ratelimit.Limiter
}

func NewServer(cfg config.AppConfig) *Server {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbpool, err := config.ConnectDB(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	store := repository.NewStore(dbpool)
	prefStore := repository.NewPreferenceStore(dbpool)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       0,
	})

	// Realtime registry + channel.
	wsManager := ws.NewManager()
	go wsManager.Heartbeat(30 * time.Second)
	realtime := ws.NewRealtimeChannel(wsManager)

	// Push channel; provider absent => flagged off.
	var provider push.Provider
	if cfg.PushEndpoint != "" {
		provider = push.NewHTTPProvider(cfg.PushEndpoint, cfg.PushAPIKey, cfg.PushTimeout)
	} else {
		log.Println("[server] push provider not configured, push channel disabled")
	}
	pushChannel := push.NewPushChannel(provider, cfg.PushTimeout)

	limiter := ratelimit.New()
	limiter.StartSweeper(ratelimit.DefaultSweep)

	dispatcher := usecase.NewDispatcher(store, prefStore, limiter, realtime, pushChannel)
	uc := usecase.NewNotificationUsecase(store, prefStore)

	restHandler := hrest.NewNotificationHandler(dispatcher, uc)
	wsHandler := wshandler.NewWSHandler(wsManager)

	r := chi.NewRouter()
	router.SetupRoutes(r, restHandler, wsHandler, rdb)

	return &Server{
		HTTP: &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: r,
		},
		dispatcher: dispatcher,
		limiter:    limiter,
	}
}

// Shutdown stops accepting requests, then drains detached push
// deliveries so every record gets its flag write.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.HTTP.Shutdown(ctx)
	s.limiter.Stop()
	s.dispatcher.Wait()
	return err
}
