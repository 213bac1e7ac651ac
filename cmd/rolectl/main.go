package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/roleforge/roleforge/pkg/rbac"
	"github.com/sirupsen/logrus"
)

const usage = `rolectl - administer a roleforge database

Usage:
  rolectl <command> [flags]

Commands:
  migrate     apply schema migrations
  seed        create managed role definitions
  recompute   rebuild team closures and all evaluation tuples
  verify      report drift between stored and expected evaluations
  check       answer one permission check
  maintain    run scheduled drift sweeps until interrupted

Common flags:
  -db-url     PostgreSQL connection URL (default $DATABASE_URL)
  -registry   path to the resource type registry YAML
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	log := logrus.New()
	ctx := context.Background()

	command := os.Args[1]
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	dbURL := fs.String("db-url", getEnv("DATABASE_URL", "postgres://localhost/roleforge?sslmode=disable"), "PostgreSQL connection URL")
	registryPath := fs.String("registry", getEnv("ROLEFORGE_REGISTRY", "registry.yaml"), "Path to registry YAML")
	schedule := fs.String("schedule", "@hourly", "Cron schedule for maintain")
	userID := fs.Int64("user", 0, "User id for check")
	objType := fs.String("type", "", "Resource type for check")
	objID := fs.String("object", "", "Object id for check")
	perm := fs.String("perm", "", "Permission codename or action for check")
	fs.Parse(os.Args[2:])

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.WithError(err).Fatal("database not reachable")
	}

	if command == "migrate" {
		if err := rbac.RunMigrations(ctx, db); err != nil {
			log.WithError(err).Fatal("migrations failed")
		}
		log.Info("migrations applied")
		return
	}

	reg, err := rbac.LoadRegistryFromYAML(*registryPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load registry")
	}
	engine, err := rbac.New(ctx, db, reg, rbac.LoadSettings(), rbac.WithLogger(log))
	if err != nil {
		log.WithError(err).Fatal("failed to initialize engine")
	}

	switch command {
	case "seed":
		roles, err := engine.SeedManagedRoles(ctx)
		if err != nil {
			log.WithError(err).Fatal("seeding failed")
		}
		log.WithField("count", len(roles)).Info("managed roles in place")

	case "recompute":
		if err := engine.RecomputeAll(ctx); err != nil {
			log.WithError(err).Fatal("recompute failed")
		}
		log.Info("evaluations recomputed")

	case "verify":
		report, err := engine.VerifyEvaluations(ctx)
		if err != nil {
			log.WithError(err).Fatal("verification failed")
		}
		log.WithFields(logrus.Fields{
			"roles_checked":  report.RolesChecked,
			"missing_tuples": report.MissingTuples,
			"extra_tuples":   report.ExtraTuples,
		}).Info("verification complete")
		if report.HasDrift() {
			log.WithField("role_ids", report.DriftRoleIDs).Warning("evaluation drift detected")
			os.Exit(1)
		}

	case "check":
		if *userID == 0 || *objType == "" || *objID == "" || *perm == "" {
			log.Fatal("check requires -user, -type, -object and -perm")
		}
		rt, err := reg.Type(*objType)
		if err != nil {
			log.WithError(err).Fatal("unknown resource type")
		}
		id, err := rbac.ParseResourceID(rt.PK, *objID)
		if err != nil {
			log.WithError(err).Fatal("invalid object id")
		}
		obj := rbac.Resource{Type: *objType, ID: id}
		allowed, err := engine.HasObjPerm(ctx, rbac.User{ID: *userID}, obj, *perm)
		if err != nil {
			log.WithError(err).Fatal("check failed")
		}
		fmt.Println(allowed)
		if !allowed {
			os.Exit(1)
		}

	case "maintain":
		m, err := rbac.NewMaintenance(engine, *schedule)
		if err != nil {
			log.WithError(err).Fatal("failed to schedule maintenance")
		}
		m.Start()
		log.WithField("schedule", *schedule).Info("maintenance sweeps scheduled")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Info("shutting down")
		m.Stop()

	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
