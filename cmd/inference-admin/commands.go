package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-inference/config"
	"github.com/target/mmk-inference/internal/bootstrap"
	"github.com/target/mmk-inference/internal/core"
	"github.com/target/mmk-inference/internal/data"
	"github.com/target/mmk-inference/internal/domain/model"
	"github.com/target/mmk-inference/internal/service"
)

const defaultCommandTimeout = 5 * time.Minute

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

// withHistory opens the configured history store for the duration of fn.
func withHistory(cmdCtx *commandContext, migrate bool, fn func(ctx context.Context, store core.HistoryStore) error) error {
	cfg := cmdCtx.Config
	if !cfg.History.Enabled() {
		return errors.New("history is disabled; set HISTORY_DRIVER to postgres or sqlite")
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	var db *sql.DB
	if cfg.History.Driver == config.HistoryDriverPostgres {
		var err error
		db, err = bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, Logger: cmdCtx.Logger})
		if err != nil {
			return err
		}
		defer db.Close()
	}

	store, err := bootstrap.OpenHistory(ctx, bootstrap.HistoryConfig{
		History:       cfg.History,
		DB:            db,
		RunMigrations: migrate,
		Logger:        cmdCtx.Logger,
	})
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, store)
}

// withRedis connects to Redis for the duration of fn.
func withRedis(cmdCtx *commandContext, fn func(ctx context.Context, client redis.UniversalClient) error) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	client, err := bootstrap.ConnectRedis(ctx, bootstrap.DatabaseConfig{RedisConfig: cmdCtx.Config.Redis, Logger: cmdCtx.Logger})
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(ctx, client)
}

func runMigrate(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("migrate", cmdCtx.Out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withHistory(cmdCtx, true, func(context.Context, core.HistoryStore) error {
		return writef(cmdCtx.Out, "migrations applied (%s)\n", cmdCtx.Config.History.Driver)
	})
}

type issueSessionOptions struct {
	User   string
	Email  string
	Groups []string
	TTL    time.Duration
}

func parseIssueSessionFlags(args []string, out io.Writer) (issueSessionOptions, error) {
	fs := newFlagSet("issue-session", out)
	var opts issueSessionOptions
	var groups string
	fs.StringVar(&opts.User, "user", "", "User id the session belongs to (required)")
	fs.StringVar(&opts.Email, "email", "", "Optional email recorded on the session")
	fs.StringVar(&groups, "groups", "", "Comma-separated groups used to derive the role")
	fs.DurationVar(&opts.TTL, "ttl", 0, "Session lifetime; zero uses SESSION_DEFAULT_TTL")
	if err := fs.Parse(args); err != nil {
		return issueSessionOptions{}, err
	}

	opts.User = strings.TrimSpace(opts.User)
	if opts.User == "" {
		return issueSessionOptions{}, errors.New("--user is required")
	}
	if opts.TTL < 0 {
		return issueSessionOptions{}, errors.New("--ttl must not be negative")
	}
	for _, g := range strings.Split(groups, ",") {
		if g = strings.TrimSpace(g); g != "" {
			opts.Groups = append(opts.Groups, g)
		}
	}
	return opts, nil
}

func runIssueSession(cmdCtx *commandContext, args []string) error {
	opts, err := parseIssueSessionFlags(args, cmdCtx.Out)
	if err != nil {
		return err
	}
	return withRedis(cmdCtx, func(ctx context.Context, client redis.UniversalClient) error {
		svc, err := bootstrap.BuildAuthService(bootstrap.AuthConfig{
			Auth:        cmdCtx.Config.Auth,
			RedisClient: client,
			Logger:      cmdCtx.Logger,
		})
		if err != nil {
			return err
		}
		sess, err := svc.IssueSession(ctx, service.IssueSessionInput{
			UserID: opts.User,
			Email:  opts.Email,
			Groups: opts.Groups,
			TTL:    opts.TTL,
		})
		if err != nil {
			return err
		}
		return writef(cmdCtx.Out, "token:   %s\nuser:    %s\nrole:    %s\nexpires: %s\n",
			sess.ID, sess.UserID, sess.Role, sess.ExpiresAt.UTC().Format(time.RFC3339))
	})
}

func runRevokeSession(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("revoke-session", cmdCtx.Out)
	id := fs.String("id", "", "Session token to revoke (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*id) == "" {
		return errors.New("--id is required")
	}
	return withRedis(cmdCtx, func(ctx context.Context, client redis.UniversalClient) error {
		svc, err := bootstrap.BuildAuthService(bootstrap.AuthConfig{
			Auth:        cmdCtx.Config.Auth,
			RedisClient: client,
			Logger:      cmdCtx.Logger,
		})
		if err != nil {
			return err
		}
		if err := svc.RevokeSession(ctx, strings.TrimSpace(*id)); err != nil {
			return err
		}
		return writef(cmdCtx.Out, "session revoked\n")
	})
}

type listHistoryOptions struct {
	Owner  string
	Limit  int
	Offset int
}

func parseListHistoryFlags(args []string, out io.Writer) (listHistoryOptions, error) {
	fs := newFlagSet("list-history", out)
	var opts listHistoryOptions
	fs.StringVar(&opts.Owner, "owner", "", "Only show records submitted by this user")
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum number of records")
	fs.IntVar(&opts.Offset, "offset", 0, "Records to skip")
	if err := fs.Parse(args); err != nil {
		return listHistoryOptions{}, err
	}
	if opts.Limit <= 0 {
		return listHistoryOptions{}, errors.New("--limit must be greater than zero")
	}
	if opts.Offset < 0 {
		return listHistoryOptions{}, errors.New("--offset must not be negative")
	}
	opts.Owner = strings.TrimSpace(opts.Owner)
	return opts, nil
}

func runListHistory(cmdCtx *commandContext, args []string) error {
	opts, err := parseListHistoryFlags(args, cmdCtx.Out)
	if err != nil {
		return err
	}
	return withHistory(cmdCtx, false, func(ctx context.Context, store core.HistoryStore) error {
		records, err := store.List(ctx, model.HistoryListOptions{Owner: opts.Owner, Limit: opts.Limit, Offset: opts.Offset})
		if err != nil {
			return err
		}
		return renderHistory(cmdCtx.Out, records)
	})
}

func renderHistory(out io.Writer, records []model.HistoryRecord) error {
	if len(records) == 0 {
		return writef(out, "No history records found.\n")
	}
	tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	if err := writef(tw, "JOB\tMODEL\tSTATUS\tOWNER\tFINISHED\tERROR\n"); err != nil {
		return err
	}
	for _, r := range records {
		errCode := "-"
		if r.ErrorCode != nil && *r.ErrorCode != "" {
			errCode = *r.ErrorCode
		}
		if err := writef(tw, "%s\t%s@%s\t%s\t%s\t%s\t%s\n",
			r.JobID, r.ModelID, r.ModelVersion, r.Status, r.SubmittedBy,
			r.FinishedAt.UTC().Format(time.RFC3339), errCode); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func runPruneHistory(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("prune-history", cmdCtx.Out)
	olderThan := fs.Duration("older-than", cmdCtx.Config.History.Retention, "Delete records finished longer ago than this")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *olderThan <= 0 {
		return errors.New("--older-than must be greater than zero")
	}
	return withHistory(cmdCtx, false, func(ctx context.Context, store core.HistoryStore) error {
		n, err := store.Prune(ctx, time.Now().Add(-*olderThan))
		if err != nil {
			return err
		}
		return writef(cmdCtx.Out, "pruned %d record(s)\n", n)
	})
}

func runClearCache(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("clear-cache", cmdCtx.Out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cacheCfg := cmdCtx.Config.Cache
	if cacheCfg.Backend != config.CacheBackendRedis {
		return fmt.Errorf("cache backend %q lives in the server process; restart it to clear", cacheCfg.Backend)
	}
	return withRedis(cmdCtx, func(ctx context.Context, client redis.UniversalClient) error {
		n, err := data.NewRedisCacheRepo(client, cacheCfg.KeyPrefix).Clear(ctx)
		if err != nil {
			return err
		}
		return writef(cmdCtx.Out, "removed %d cached result(s)\n", n)
	})
}
