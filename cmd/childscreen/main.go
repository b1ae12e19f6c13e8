package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/archive"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/functions"
	v1 "github.com/dmehra2102/prod-golang-projects/childscreen/internal/handler/v1"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/middleware"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/service"
	"github.com/dmehra2102/prod-golang-projects/childscreen/pkg/database"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "childscreen",
		Short:         "Child health screening API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(functionsCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			router := v1.NewRouter(v1.RouterDeps{
				Config:   a.cfg,
				Log:      a.log,
				Metrics:  a.metrics,
				Sessions: a.authSvc,
				Services: a.services,
				Health:   a.ping,
			})

			return listen(ctx, a, a.cfg.Server.Address(), router)
		},
	}
}

// functionsCmd runs the privileged user-management functions. They share the
// database and JWT secret with the API but listen on their own port.
func functionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "functions",
		Short: "Start the privileged user-management functions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.App.IsProduction() {
				gin.SetMode(gin.ReleaseMode)
			}
			r := gin.New()
			r.Use(
				middleware.RequestID(),
				middleware.Tracing(),
				middleware.Recovery(a.log),
				middleware.Logger(a.log),
				middleware.Metrics(a.metrics),
				middleware.Deadline(a.cfg.Functions.Timeout),
			)
			functions.NewHandler(functions.NewService(a.users, a.profiles, a.jwt, a.log), a.log).Register(r)

			return listen(ctx, a, a.cfg.Functions.Address(), r)
		},
	}
}

func listen(ctx context.Context, a *app, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("starting server", zap.String("addr", addr), zap.String("env", a.cfg.App.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	a.log.Info("server stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create schemas, tables and indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := database.Migrate(a.db, a.log); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			a.log.Info("migrations applied")
			return nil
		},
	}
}

// cliActor acts for the operator running a command-line import or export.
func cliActor() service.Actor {
	return service.Actor{
		UserID:    uuid.Nil,
		Role:      domain.RoleAdmin,
		IP:        "cli",
		RequestID: uuid.NewString(),
	}
}

func importCmd() *cobra.Command {
	var commit bool

	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Validate a patient CSV file and optionally import it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			actor := cliActor()
			preview, err := a.patients.PreviewImport(cmd.Context(), f, actor)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, row := range preview.Rows {
				fmt.Fprintf(out, "line %d\t%s\t%s %s\t%s\t%s\t%s\n",
					row.Line, row.ChildCode, row.FirstName, row.LastName, row.Community, row.DateOfBirth, row.Sex)
			}
			if !commit {
				fmt.Fprintf(out, "%d rows valid; re-run with --commit to import\n", len(preview.Rows))
				return nil
			}

			n, err := a.patients.CommitImport(cmd.Context(), preview.ID, actor)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "imported %d patients\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&commit, "commit", false, "import the rows instead of only validating them")
	return cmd
}

func exportCmd() *cobra.Command {
	var bucket, prefix string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all patients as CSV to stdout or upload them to S3",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if bucket == "" {
				return a.patients.Export(cmd.Context(), cmd.OutOrStdout())
			}

			exportCfg := a.cfg.Export
			exportCfg.Bucket = bucket
			if prefix != "" {
				exportCfg.Prefix = prefix
			}
			arc, err := archive.New(cmd.Context(), exportCfg)
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			if err := a.patients.Export(cmd.Context(), &buf); err != nil {
				return err
			}
			name := fmt.Sprintf("patients-%s.csv", time.Now().UTC().Format("20060102T150405Z"))
			key, err := arc.Put(cmd.Context(), name, buf.Bytes())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded s3://%s/%s\n", arc.Bucket(), key)
			return nil
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "upload to this S3 bucket instead of writing to stdout")
	cmd.Flags().StringVar(&prefix, "prefix", "", "object key prefix (defaults to EXPORT_S3_PREFIX)")
	return cmd
}
