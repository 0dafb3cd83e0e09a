package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"bookdex/internal/catalog"
	"bookdex/internal/ingest"
	"bookdex/internal/runfeed"
	"bookdex/pkg/database"
)

func main() {
	cfg := database.DefaultConfig()
	db := database.MustOpen(cfg)
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	router := gin.Default()
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	feed := runfeed.NewHub()
	router.GET("/ws/runs", runfeed.WSHandler(feed))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": cfg.Path})
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":     "not_ready",
				"db_error":   err.Error(),
				"ws_clients": feed.Count(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":     "ready",
			"db":         "ok",
			"ws_clients": feed.Count(),
		})
	})

	// Catalog (public, read-only)
	repo := catalog.NewRepo(db)
	handler := catalog.NewHandler(repo)
	handler.RegisterRoutes(router)

	// Catalog update trigger. One run at a time; the scratch-directory
	// precondition in the runner guards against overlap across processes.
	var runActive atomic.Bool
	router.POST("/catalog/runs", func(c *gin.Context) {
		if !runActive.CompareAndSwap(false, true) {
			c.JSON(http.StatusConflict, gin.H{"error": "a catalog run is already active"})
			return
		}

		runner := ingest.NewRunner(db, ingest.LoadConfig())
		runner.Feed = feed
		go func() {
			defer runActive.Store(false)
			res := runner.Run(context.Background())
			if res.Err != nil {
				log.Printf("catalog run %s failed: %v", res.RunID, res.Err)
				return
			}
			log.Printf("catalog run %s done: %d seen, %d deleted, %d failed",
				res.RunID, res.Seen, res.Deleted, len(res.FailedIDs))
		}()

		c.JSON(http.StatusAccepted, gin.H{"status": "started"})
	})

	httpSrv := &http.Server{
		Addr:    ":8080",
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Println("HTTP API server listening on :8080")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("shutdown signal received: %s", sig)
	case err := <-errCh:
		log.Printf("server error: %v", err)
	}

	log.Println("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	log.Println("server stopped")
}
