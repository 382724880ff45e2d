package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/config"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/domain/identity"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/domain/messaging"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/domain/scheduling"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/auth"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/bus"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/db"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/events"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/meeting"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/middleware"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/websocket"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "telehealth-server",
		Short: "Telehealth messaging and appointment server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(appointmentsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", db.DefaultSchema, "Target schema for migrations")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.Modified {
						status = "modified"
					}
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", db.DefaultSchema, "Target schema for migrations")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func appointmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "appointments",
		Short: "Maintain appointments",
	}

	linkCmd := &cobra.Command{
		Use:   "link-patient",
		Short: "Attach a patient to an appointment that has none",
		RunE: func(cmd *cobra.Command, args []string) error {
			apptID, _ := cmd.Flags().GetInt64("id")
			patientID, _ := cmd.Flags().GetInt64("patient")
			actorID, _ := cmd.Flags().GetInt64("actor")
			if apptID <= 0 || patientID <= 0 || actorID <= 0 {
				return fmt.Errorf("--id, --patient and --actor are required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			dir := identity.NewDirectory(identity.NewUserRepo(pool), nil)
			actor, err := dir.GetByID(ctx, actorID)
			if err != nil {
				return fmt.Errorf("look up actor %d: %w", actorID, err)
			}
			if !actor.Role.IsStaff() {
				return fmt.Errorf("user %d is a %s; only staff may relink appointments", actorID, actor.Role)
			}

			// Joining is never reached from here, so any provisioner will do.
			sched := scheduling.NewScheduler(scheduling.NewAppointmentRepo(pool), dir,
				meeting.NewLinkProvisioner(cfg.MeetingLinkTemplate), events.NewLogPublisher(logger),
				scheduling.Config{}, logger)

			a, err := sched.LinkPatient(ctx, auth.Identity{UserID: actor.ID, Role: actor.Role}, apptID, patientID)
			if err != nil {
				return err
			}
			fmt.Printf("Appointment %d (%s on %s %s) now belongs to patient %d.\n",
				a.ID, a.AppointmentType, a.Date, a.Time, patientID)
			return nil
		},
	}
	linkCmd.Flags().Int64("id", 0, "Appointment id")
	linkCmd.Flags().Int64("patient", 0, "Patient user id")
	linkCmd.Flags().Int64("actor", 0, "Staff user id performing the change")
	cmd.AddCommand(linkCmd)

	return cmd
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// newProvisioner picks the meeting backend. GOOGLE_CREDS_JSON may hold the
// credentials inline or name a file containing them.
func newProvisioner(ctx context.Context, cfg *config.Config) (meeting.Provisioner, error) {
	switch cfg.MeetingProvider {
	case "calendar":
		creds := []byte(cfg.GoogleCredsJSON)
		if !strings.HasPrefix(strings.TrimSpace(cfg.GoogleCredsJSON), "{") {
			b, err := os.ReadFile(cfg.GoogleCredsJSON)
			if err != nil {
				return nil, fmt.Errorf("read google credentials: %w", err)
			}
			creds = b
		}
		return meeting.NewCalendarProvisioner(ctx, creds, cfg.GoogleCalendarID)
	case "link":
		return meeting.NewLinkProvisioner(cfg.MeetingLinkTemplate), nil
	}
	return nil, fmt.Errorf("unknown meeting provider %q", cfg.MeetingProvider)
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	jwtCfg := auth.JWTConfig{
		SigningKey: []byte(cfg.AuthSigningKey),
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
	}
	if cfg.IsDev() {
		return auth.DevAuthMiddleware(jwtCfg)
	}
	return auth.JWTMiddleware(jwtCfg)
}

// liveStats is the part of the WebSocket layer /health reports on.
type liveStats interface {
	ChannelCount() int
}

type connStats interface {
	ConnectionCount() int
}

func healthHandler(hub liveStats, ws connStats) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"version":     version,
			"channels":    hub.ChannelCount(),
			"connections": ws.ConnectionCount(),
		})
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := newLogger(cfg)

	loc, err := cfg.MeetingLocation()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Live delivery: the local hub, fronted by Redis when instances share load.
	hub := websocket.NewHub(logger, cfg.WSSendBuffer)
	var out messaging.Deliverer = hub
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = bus.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()

		rb := bus.NewRedisBus(rdb, hub, logger)
		go func() {
			if err := rb.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("fan-out bus stopped")
			}
		}()
		out = rb
		logger.Info().Msg("redis fan-out enabled")
	}

	// Lifecycle events
	publishers := events.Multi{events.NewLogPublisher(logger), events.NewLivePublisher(out)}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to rabbitmq")
		}
		defer amqpPub.Close()
		publishers = append(publishers, amqpPub)
		logger.Info().Str("exchange", cfg.AMQPExchange).Msg("amqp event publishing enabled")
	}

	provisioner, err := newProvisioner(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up meeting provider")
	}

	// Domain services
	directory := identity.NewDirectory(identity.NewUserRepo(pool), hub)
	store := messaging.NewStore(messaging.NewMessageRepo(pool))
	router := messaging.NewRouter(store, out, messaging.RouterConfig{
		TypingWorkers:   cfg.TypingWorkers,
		TypingQueueSize: cfg.TypingQueueSize,
	}, logger)
	go router.Run(ctx)

	scheduler := scheduling.NewScheduler(scheduling.NewAppointmentRepo(pool), directory, provisioner, publishers,
		scheduling.Config{
			Policy: scheduling.Policy{
				PreventOverlap:  cfg.SchedulingPreventOverlap,
				RejectPastDates: cfg.SchedulingRejectPastDates,
			},
			Location:         loc,
			ProvisionTimeout: cfg.MeetingTimeout,
		}, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-User-ID", "X-User-Role"},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("64K"))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	authMW := authMiddleware(cfg)
	if cfg.IsDev() {
		logger.Warn().Msg("dev auth enabled: X-User-ID / X-User-Role headers are trusted")
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1 := e.Group("/api/v1", authMW, middleware.RateLimit(rateLimitCfg))

	identity.NewHandler(directory).RegisterRoutes(apiV1)
	messaging.NewHandler(store, router).RegisterRoutes(apiV1)
	scheduling.NewHandler(scheduler).RegisterRoutes(apiV1)

	wsHandler := websocket.NewWebSocketHandler(hub, router, websocket.HandlerConfig{
		MaxConnections:  cfg.WSMaxConnections,
		EventsPerSecond: cfg.WSEventsPerSecond,
		AllowedOrigins:  cfg.CORSOrigins,
	}, logger)
	wsHandler.RegisterRoutes(e, authMW)

	e.GET("/health", healthHandler(hub, wsHandler))
	e.GET("/health/db", db.HealthHandler(pool, rdb))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	cancel()
	wsHandler.Close()
	hub.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
