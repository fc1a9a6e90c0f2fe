package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jengzang/trailscore-backend-go/internal/api"
	"github.com/jengzang/trailscore-backend-go/internal/config"
	"github.com/jengzang/trailscore-backend-go/internal/database"
	"github.com/jengzang/trailscore-backend-go/internal/recorder"
	"github.com/jengzang/trailscore-backend-go/internal/repository"
	"github.com/jengzang/trailscore-backend-go/internal/resource"
	"github.com/jengzang/trailscore-backend-go/internal/service"
	"github.com/jengzang/trailscore-backend-go/internal/syncbridge"
)

func main() {
	// 加载配置
	cfg := config.Load()

	rules, err := config.LoadScoring(cfg.ScoringConfigPath)
	if err != nil {
		log.Fatal("Failed to load scoring config:", err)
	}

	// 初始化数据库
	db, err := database.Open(database.Config{Path: cfg.DBPath})
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo := repository.NewSessionRepository(db)
	source := resource.NewPushSource()
	guard := resource.NewGuard(source, resource.NewLeaseLocker(), resource.NewSysfsBattery(), resource.DefaultWatchOptions)

	// 同步到评审后端
	var syncer service.Syncer
	var bridge *syncbridge.Bridge
	if cfg.SyncEndpoint != "" {
		signer := syncbridge.NewTokenSigner(cfg.JWTSecret, cfg.DeviceID, 0)
		uploader := syncbridge.NewHTTPUploader(cfg.SyncEndpoint, cfg.SyncTimeout, signer)
		opts := syncbridge.DefaultOptions()
		opts.DeviceID = cfg.DeviceID
		opts.MaxAttempts = cfg.SyncMaxAttempts
		opts.Prune = cfg.SyncPrune
		bridge = syncbridge.NewBridge(repo, uploader, opts)
		syncer = bridge
	} else {
		log.Printf("SYNC_ENDPOINT not set, finalized sessions stay in the local archive")
	}

	recOpts := recorder.DefaultOptions()
	recOpts.MinMovementM = cfg.MinMovementM
	recOpts.MaxAccuracyM = cfg.MaxAccuracyM
	recOpts.StaleAfter = cfg.StaleAfter

	recordingService := service.NewRecordingService(repo, source, guard, recorder.RealClock(), recOpts, rules, syncer)
	adopted, err := recordingService.Restore(ctx)
	if err != nil {
		log.Printf("Failed to restore active session: %v", err)
	} else if adopted {
		log.Printf("Resumed interrupted session %s", recordingService.Status().SessionID)
	}

	// 恢复完成后再启动同步，未评分的记录已补齐评分
	if bridge != nil {
		go bridge.Run(ctx, cfg.SyncInterval)
	}

	// 初始化路由
	router := api.SetupRouter(cfg, recordingService)
	srv := &http.Server{Addr: cfg.Port, Handler: router}

	// 启动服务器
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
	recordingService.Wait()
}
