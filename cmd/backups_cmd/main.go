package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/icheme/portfolio/internal/backup"
	"github.com/icheme/portfolio/internal/config"
	"github.com/icheme/portfolio/internal/cv"
	"github.com/icheme/portfolio/internal/db"
	"github.com/icheme/portfolio/internal/logging"
	"github.com/icheme/portfolio/internal/messages"
	"github.com/icheme/portfolio/internal/projects"
)

// exports site content (projects, messages, cv records) to google drive

func main() {
	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	credentialsFile := flag.String("gd-creds", "./drive-credentials.json", "google drive service account credentials json")
	folderName := flag.String("folder", backup.DefaultFolderName, "google drive backups folder name")
	shareWith := flag.String("share-with", "", "email given read access to created backups (optional)")
	logsPath := flag.String("logs-path", "", "backup logs file path (empty for stdout)")
	reinit := flag.Bool("reinit", false, "delete all backups and start again")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debugf("no .env file loaded: %s", err)
	}

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		log.Fatalf("load config: %s", err)
	}

	logging.Setup(logging.LoggerSetupParams{
		LogFileName:      *logsPath,
		LogToStdout:      *logsPath == "",
		LogLevel:         cfg.LogLevel,
		Environment:      cfg.Environment,
		SentryEnabled:    cfg.SentryEnabled,
		SentryDSN:        os.Getenv("SENTRY_DSN"),
		SentryServerName: "backups-cmd",
	})

	log.Println("starting backup ...")
	if *reinit {
		log.Warnln("!! attention: will delete all existing backups")
	}

	credentials, err := os.ReadFile(*credentialsFile)
	if err != nil {
		log.Fatalf("read google drive credentials: %s", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:     cfg.PostgresHost,
		DBPort:     cfg.PostgresPort,
		DBName:     cfg.PostgresDBName,
		DBUser:     cfg.PostgresUser,
		DBPassword: os.Getenv("PORTFOLIO_DB_PASSWORD"),
	})
	if err != nil {
		log.Fatalf("db pool: %s", err)
	}
	defer dbPool.Close()

	projectsRepo := projects.NewRepo(dbPool)
	messagesRepo := messages.NewRepo(dbPool)
	cvRepo := cv.NewRepo(dbPool)

	driveClient, err := backup.NewGoogleDrive(ctx, credentials)
	if err != nil {
		log.Fatalf("google drive: %s", err)
	}

	service, err := backup.NewService(ctx, driveClient, *folderName, *shareWith,
		backup.Table{Name: "projects", Export: func(ctx context.Context) (any, error) {
			return projectsRepo.List(ctx, 0)
		}},
		backup.Table{Name: "messages", Export: func(ctx context.Context) (any, error) {
			return messagesRepo.List(ctx, 0)
		}},
		backup.Table{Name: "cv_files", Export: func(ctx context.Context) (any, error) {
			return cvRepo.List(ctx)
		}},
	)
	if err != nil {
		log.Fatalf("create backup service: %s", err)
	}

	baseTime := time.Now()
	if *reinit {
		if err := service.Reinit(ctx, baseTime); err != nil {
			log.Fatalf("reinit failed: %s", err)
		}
		log.Println("reinit done")
		return
	}

	created, err := service.DoBackup(ctx, baseTime)
	if err != nil {
		log.Fatalf("backup failed after %d files: %s", len(created), err)
	}
	log.Printf("backup done, %d files created in %s", len(created), service.FolderID())
}
