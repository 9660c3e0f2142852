package main

import (
  "context"
  "fmt"
  "os"
  "os/signal"
  "syscall"
  "time"
  "github.com/yungbote/commitments-backend/internal/logger"
  "github.com/yungbote/commitments-backend/internal/utils"
  "github.com/yungbote/commitments-backend/internal/db"
  "github.com/yungbote/commitments-backend/internal/repos"
  "github.com/yungbote/commitments-backend/internal/scoring"
  "github.com/yungbote/commitments-backend/internal/locking"
  "github.com/yungbote/commitments-backend/internal/services"
  "github.com/yungbote/commitments-backend/internal/ingest"
)

// Core bundles the wired application services. The transport that calls the
// intake and query sides lives outside this binary and receives the same set.
type Core struct {
  Intake      ingest.Intake
  Resolver    services.ResolutionService
  Commitments services.CommitmentService
  Queries     services.QueryService
}

func main() {
  // Logger
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("Failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  // Env
  log.Info("Loading environment variables from main...")
  scoringConfigPath := utils.GetEnv("SCORING_CONFIG_PATH", "", log)
  lockWaitSeconds := utils.GetEnvAsInt("RESOLVE_LOCK_WAIT_SECONDS", 5, log)
  workerConcurrency := utils.GetEnvAsInt("INGEST_WORKER_CONCURRENCY", 4, log)
  workerMaxAttempts := utils.GetEnvAsInt("INGEST_MAX_ATTEMPTS", 5, log)

  // Scoring config
  scoringCfg, err := scoring.Load(scoringConfigPath, log)
  if err != nil {
    log.Error("Invalid scoring configuration", "error", err)
    os.Exit(1)
  }

  // Postgres
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Error("Postgres init failed", "error", err)
    os.Exit(1)
  }
  if err = postgresService.AutoMigrateAll(); err != nil {
    log.Error("Postgres auto migration failed", "error", err)
    os.Exit(1)
  }
  thePG := postgresService.DB()

  // Repos
  log.Info("Setting up Repos from main...")
  commitmentRepo := repos.NewCommitmentRepo(thePG, log)
  linkRepo := repos.NewLinkRepo(thePG, log)
  auditRepo := repos.NewAuditRepo(thePG, log)
  taskRepo := repos.NewIngestTaskRepo(thePG, log)

  // Per-key locking: redis when configured, in-process otherwise.
  var locker locking.KeyedLocker
  if os.Getenv("REDIS_ADDR") != "" {
    redisLocker, err := locking.NewRedisLocker(log)
    if err != nil {
      log.Error("Could not init RedisLocker", "error", err)
      os.Exit(1)
    }
    defer redisLocker.Close()
    locker = redisLocker
    log.Info("Using redis key locking")
  } else {
    locker = locking.NewKeyedMutex()
    log.Info("Using in-process key locking")
  }

  // Services
  log.Info("Setting up Services from main...")
  refineService := services.NewRefineService(thePG, log, commitmentRepo, auditRepo)
  linkRegistry := services.NewLinkRegistry(thePG, log, linkRepo)
  core := &Core{
    Intake: ingest.NewIntake(thePG, log, taskRepo),
    Resolver: services.NewResolutionService(
      thePG, log, scoringCfg, locker,
      time.Duration(lockWaitSeconds)*time.Second,
      commitmentRepo, linkRepo, refineService, linkRegistry,
    ),
    Commitments: services.NewCommitmentService(thePG, log, commitmentRepo, linkRepo),
    Queries:     services.NewQueryService(thePG, log, commitmentRepo, linkRepo, auditRepo),
  }

  // Ingest worker
  workerCfg := ingest.DefaultWorkerConfig()
  workerCfg.Concurrency = workerConcurrency
  workerCfg.MaxAttempts = workerMaxAttempts
  worker := ingest.NewWorker(thePG, log, taskRepo, core.Resolver, workerCfg)

  ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
  defer stop()

  log.Info("Starting ingest worker...", "concurrency", workerCfg.Concurrency)
  worker.Start(ctx)

  <-ctx.Done()
  log.Info("Shutting down")
}
