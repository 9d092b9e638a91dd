package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/victornm/quizroom/internal/api"
	"github.com/victornm/quizroom/internal/connection"
	"github.com/victornm/quizroom/internal/event"
	"github.com/victornm/quizroom/internal/flow"
	"github.com/victornm/quizroom/internal/game"
	"github.com/victornm/quizroom/internal/join"
	"github.com/victornm/quizroom/internal/leaderboard"
	"github.com/victornm/quizroom/internal/notify"
	"github.com/victornm/quizroom/internal/quiz"
	"github.com/victornm/quizroom/internal/roomcode"
	"github.com/victornm/quizroom/internal/score"
	"github.com/victornm/quizroom/internal/session"
	"github.com/victornm/quizroom/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
		// PublicURL is the base URL of the player web client.
		PublicURL string
	}

	GRPC struct {
		Port int32
	}

	Game struct {
		CodeLength       int
		HostGracePeriod  time.Duration
		Retention        time.Duration
		DefaultTimeLimit time.Duration
		DefaultPoints    int64
		MinFactor        float64
	}

	Redis struct {
		Archive struct {
			Addrs  []string
			Pass   string
			Prefix string
			TTL    time.Duration
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		Quiz struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}

	// Games are served when no Postgres definitions store is configured.
	Games []quiz.GameConfig
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			archive redis.UniversalClient
			pubsub  redis.UniversalClient
		}

		postgres struct {
			quiz *sql.DB
		}
	}

	service struct {
		provider game.Provider
		archive  *leaderboard.Archive
		hub      *notify.Hub
		sink     game.Sink
		manager  *game.Manager
	}

	http *http.Server
	grpc *grpc.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()
	telemetry.ObserveAnswers(s.eb)

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(name string, addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r, name); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	if len(s.c.Redis.Archive.Addrs) > 0 {
		s.infra.redis.archive, err = connect("archive", s.c.Redis.Archive.Addrs, s.c.Redis.Archive.Pass)
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
	}

	if len(s.c.Redis.Pubsub.Addrs) > 0 {
		s.infra.redis.pubsub, err = connect("pubsub", s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
		if err != nil {
			return fmt.Errorf("pubsub: %w", err)
		}
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	connect := func(addr, user, pass, name string) (*sql.DB, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		db, err := sql.Open("pgx", fmt.Sprintf("postgres://%s:%s@%s/%s", user, pass, addr, name))
		if err != nil {
			return nil, err
		}

		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}

		return db, nil
	}

	pc := s.c.Postgres.Quiz
	if pc.Addr == "" {
		return nil
	}

	s.infra.postgres.quiz, err = connect(pc.Addr, pc.User, pc.Pass, pc.Name)
	if err != nil {
		return fmt.Errorf("postgres: quiz: %w", err)
	}

	return nil
}

func (s *Server) initService() {
	if s.infra.postgres.quiz != nil {
		s.service.provider = quiz.NewPostgres(s.infra.postgres.quiz)
	} else {
		slog.Info(fmt.Sprintf("server: serving %d games from config", len(s.c.Games)))
		s.service.provider = quiz.NewStatic(s.c.Games)
	}

	if s.infra.redis.archive != nil {
		s.service.archive = leaderboard.NewArchive(leaderboard.Config{
			EventBus: s.eb,
			Redis:    s.infra.redis.archive,
			Prefix:   s.c.Redis.Archive.Prefix,
			TTL:      s.c.Redis.Archive.TTL,
		})
	}

	s.service.hub = notify.NewHub(notify.HubConfig{})
	s.service.sink = s.service.hub
	if s.infra.redis.pubsub != nil {
		s.service.sink = notify.Fanout{
			s.service.hub,
			notify.NewPubsub(notify.PubsubConfig{
				Redis:  s.infra.redis.pubsub,
				Prefix: s.c.Redis.Pubsub.Prefix,
			}),
		}
	}

	gc := s.c.Game
	mc := game.Config{
		Store: session.NewStore(session.Config{
			Codes: roomcode.NewGenerator(roomcode.Config{Length: gc.CodeLength}),
		}),
		Registry: connection.NewRegistry(),
		Flow: flow.NewController(flow.Config{
			Score: score.NewEngine(score.Config{MinFactor: gc.MinFactor}),
		}),
		Join:             join.NewCoordinator(join.Config{}),
		Provider:         s.service.provider,
		Sink:             s.service.sink,
		EventBus:         s.eb,
		HostGracePeriod:  gc.HostGracePeriod,
		Retention:        gc.Retention,
		DefaultTimeLimit: gc.DefaultTimeLimit,
		DefaultPoints:    gc.DefaultPoints,
	}
	if s.service.archive != nil {
		mc.Archive = s.service.archive
	}

	s.service.manager = game.NewManager(mc)
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor())

	api.New(api.Config{
		HTTP:      e,
		GRPC:      s.grpc,
		Manager:   s.service.manager,
		Hub:       s.service.hub,
		PublicURL: s.c.HTTP.PublicURL,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.service.manager.Stop()
	s.eb.Stop()

	if db := s.infra.postgres.quiz; db != nil {
		_ = db.Close()
	}
	for _, r := range []redis.UniversalClient{s.infra.redis.archive, s.infra.redis.pubsub} {
		if r != nil {
			_ = r.Close()
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
