package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/icheme/portfolio/internal/auth"
	"github.com/icheme/portfolio/internal/config"
	"github.com/icheme/portfolio/internal/db"
	"github.com/icheme/portfolio/pkg"
)

// creates the admin account, or resets its password with -reset

func main() {
	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	email := flag.String("email", "", "admin email")
	password := flag.String("password", "", "admin password (min 8 characters)")
	name := flag.String("name", "", "admin display name (optional)")
	reset := flag.Bool("reset", false, "reset the password of an existing admin")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debugf("no .env file loaded: %s", err)
	}
	log.SetLevel(log.DebugLevel)

	adminEmail := strings.ToLower(strings.TrimSpace(*email))
	if adminEmail == "" || *password == "" {
		flag.Usage()
		log.Fatalln("-email and -password are required")
	}
	if utf8.RuneCountInString(*password) < auth.MinPasswordLength {
		log.Fatalf("password must be at least %d characters long", auth.MinPasswordLength)
	}

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		log.Fatalf("load config: %s", err)
	}

	dbParams := db.NewDBPoolParams{
		DBHost:     cfg.PostgresHost,
		DBPort:     cfg.PostgresPort,
		DBName:     cfg.PostgresDBName,
		DBUser:     cfg.PostgresUser,
		DBPassword: os.Getenv("PORTFOLIO_DB_PASSWORD"),
	}
	applied, err := db.Migrate(db.ConnString(dbParams))
	if err != nil {
		log.Fatalf("migrate: %s", err)
	}
	log.Printf("migrations applied: %d", applied)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dbPool, err := db.NewDBPool(ctx, dbParams)
	if err != nil {
		log.Fatalf("db pool: %s", err)
	}
	defer dbPool.Close()

	passwordHash, err := pkg.HashPassword(*password)
	if err != nil {
		log.Fatalf("hash password: %s", err)
	}

	store := auth.NewCredentialStore(dbPool)
	if *reset {
		revoked, err := auth.ResetPassword(ctx, store, auth.NewSessionStore(dbPool), adminEmail, passwordHash)
		if err != nil {
			if errors.Is(err, auth.ErrAdminNotFound) {
				log.Fatalf("admin [%s] not found", adminEmail)
			}
			log.Fatalf("reset password: %s", err)
		}
		log.Printf("password of admin [%s] reset, %d session(s) signed out", adminEmail, revoked)
		return
	}

	admin, err := store.Create(ctx, adminEmail, passwordHash, strings.TrimSpace(*name))
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			log.Fatalf("admin [%s] already exists, use -reset to change the password", adminEmail)
		}
		log.Fatalf("create admin: %s", err)
	}
	log.Printf("admin %d [%s] created", admin.ID, admin.Email)
}
