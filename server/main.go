// server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexedwards/scs/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/rexlx/boards/config"
	"github.com/rexlx/boards/forum"
)

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "boards",
	Short:         "boards - a discussion forum",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = newLogger(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the forum web server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		logger.Info("Tables created", zap.String("driver", cfg.Database.Driver))
		return nil
	},
}

var (
	newUsername string
	newEmail    string
	newPassword string
	newAdmin    bool
)

var createUserCmd = &cobra.Command{
	Use:   "createuser",
	Short: "Create a forum user",
	RunE: func(cmd *cobra.Command, args []string) error {
		form := &forum.SignupForm{
			Username:     newUsername,
			Email:        newEmail,
			Password:     newPassword,
			Confirmation: newPassword,
		}
		if !form.Validate() {
			return fmt.Errorf("invalid user: %v", form.Errors)
		}
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		user := forum.NewUser(form.Username, form.Email, newAdmin)
		if err := user.SetPassword(form.Password, cfg.Forum.BcryptCost); err != nil {
			return err
		}
		if err := store.CreateUser(cmd.Context(), user); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		logger.Info("User created", zap.String("user", user.Username), zap.Bool("admin", user.Admin))
		return nil
	},
}

var (
	boardName        string
	boardDescription string
)

var createBoardCmd = &cobra.Command{
	Use:   "createboard",
	Short: "Create a board",
	RunE: func(cmd *cobra.Command, args []string) error {
		if boardName == "" {
			return errors.New("--name is required")
		}
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		board := &forum.Board{Name: boardName, Description: boardDescription}
		if err := store.CreateBoard(cmd.Context(), board); err != nil {
			return fmt.Errorf("create board: %w", err)
		}
		logger.Info("Board created", zap.Int64("id", board.ID), zap.String("name", board.Name))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "boards.yaml", "path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	createUserCmd.Flags().StringVar(&newUsername, "username", "", "username")
	createUserCmd.Flags().StringVar(&newEmail, "email", "", "email address")
	createUserCmd.Flags().StringVar(&newPassword, "password", "", "password")
	createUserCmd.Flags().BoolVar(&newAdmin, "admin", false, "grant admin rights")

	createBoardCmd.Flags().StringVar(&boardName, "name", "", "board name")
	createBoardCmd.Flags().StringVar(&boardDescription, "description", "", "board description")

	rootCmd.AddCommand(serveCmd, migrateCmd, createUserCmd, createBoardCmd)
}

func newLogger(lc config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Format == "console" {
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// openStore connects to the configured database and makes sure its tables exist.
func openStore(ctx context.Context) (forum.Store, error) {
	var (
		store forum.Store
		err   error
	)
	switch cfg.Database.Driver {
	case "postgres":
		store, err = forum.NewDatabase(ctx, cfg.Database.URL)
	default:
		store, err = forum.NewSQLiteDatabase(cfg.Database.URL)
	}
	if err != nil {
		return nil, fmt.Errorf("could not initialize database: %w", err)
	}
	if err := store.CreateTables(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("could not create tables: %w", err)
	}
	return store, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("Successfully connected to the database.", zap.String("driver", cfg.Database.Driver))

	session := scs.New()
	session.Lifetime = cfg.GetSessionLifetime()
	session.Cookie.Name = cfg.Session.CookieName
	session.Cookie.Secure = cfg.Session.SecureCookie
	session.Cookie.SameSite = http.SameSiteLaxMode

	forumHandler, err := forum.NewHandlers(store, session, logger, forum.Options{
		TopicsPerPage: cfg.Forum.TopicsPerPage,
		PostsPerPage:  cfg.Forum.PostsPerPage,
		HashCost:      cfg.Forum.BcryptCost,
	})
	if err != nil {
		return fmt.Errorf("could not create forum handler: %w", err)
	}

	svr := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      forumHandler.Routes(),
		ReadTimeout:  cfg.GetReadTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting forum server", zap.String("addr", svr.Addr))
		if err := svr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
		defer cancel()
		logger.Info("Shutting down")
		return svr.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
