package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"cueword/auth"
	"cueword/config"
	"cueword/crypto"
	"cueword/game"
	"cueword/logger"
	"cueword/migrations"
	"cueword/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const (
	tokenAge        = time.Hour * 24 * 7 // 7 days
	shutdownTimeout = 10 * time.Second
)

func CreateServer(allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.GET("/health", func(ctx *gin.Context) { ctx.String(200, "healthy") })

	r.Use(func(ctx *gin.Context) {
		origin := ctx.Request.Header.Get("Origin")

		if slices.Contains(allowedOrigins, origin) {
			ctx.Next()
			return
		}
		ctx.String(http.StatusForbidden, "forbidden origin")
		ctx.Abort()
	})

	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Upgrade",
			"Connection",
			"Sec-WebSocket-Key",
			"Sec-WebSocket-Version",
			"Sec-WebSocket-Extensions",
			"Sec-WebSocket-Protocol",
		},
	}))

	return r
}

// registerRoutes mounts the room endpoints. Only the QR code is served
// without an identity.
func registerRoutes(r *gin.Engine, h *game.GameHandler, requireIdentity gin.HandlerFunc) {
	rooms := r.Group("/rooms")
	rooms.GET("/:roomid/qr", h.QRCodeHandler)

	rooms.Use(requireIdentity)
	rooms.POST("", h.CreateRoomHandler)
	rooms.GET("/:roomid/join", h.JoinRoomHandler)
	rooms.GET("/:roomid/reconnect", h.ReconnectHandler)
}

func main() {
	cfg := &config.Config{}
	cmd := config.NewRootCommand(cfg, serve)
	cmd.AddCommand(newSeedCmd(cfg), newUserCmd(cfg), newSchemaCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		logger.Fatalf("cueword: %v", err)
	}
}

func serve(cmd *cobra.Command, cfg *config.Config) error {
	logger.Setup(cfg.Debug, os.Stdout)
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	ctx := cmd.Context()

	settings, err := cfg.Settings()
	if err != nil {
		return err
	}

	// Dependencies
	if err := migrations.Migrate(cfg.PostgresURL); err != nil {
		return err
	}
	pgRepo, err := storage.NewPostgresRepo(ctx, cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer pgRepo.Close()
	tokenManager := crypto.NewJWTManager(cfg.JWTKey, tokenAge)

	tickers := game.NewTickerGen()
	defer tickers.Stop()
	lobby := game.NewLobby(settings, pgRepo, pgRepo, game.NewIdGen(), tickers, cfg.TickInterval)
	lobbyStarted := make(chan struct{})
	go lobby.LobbyActor(lobbyStarted)
	<-lobbyStarted
	defer lobby.Stop()

	r := CreateServer(cfg.AllowedOrigins)
	gameHandler := game.NewGameHandler(lobby, pgRepo, cfg.AllowedOrigins, cfg.PublicURL)
	registerRoutes(r, gameHandler, auth.RequireIdentity(tokenManager, cfg.TrollTime))

	srv := &http.Server{Addr: cfg.Addr(), Handler: r}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()
	logger.Infof("listening on %s", cfg.Addr())

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Criticalf("http server stopped: %v", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warningf("http shutdown: %v", err)
	}
	return nil
}
