package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/koustreak/xdb/internal/filestore"
	"github.com/koustreak/xdb/internal/filestore/minio"
	"github.com/koustreak/xdb/internal/httpapi"
	"github.com/koustreak/xdb/internal/logger"
	"github.com/koustreak/xdb/internal/querylog"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the fetch pipeline and query log over HTTP",
	Long: `serve exposes POST /fetch/{mode}, POST /exec, the /log routes and the
/tables routes. The query log is switched on for the lifetime of the server.
When an archive section is configured, the log is uploaded on shutdown.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		s.log.SetActive(true)

		api := httpapi.New(s.exec, s.log, s.lg, httpapi.WithTimeout(s.cfg.Database.QueryTimeout))
		srv := &http.Server{
			Addr:         s.cfg.Server.Addr,
			Handler:      api,
			ReadTimeout:  s.cfg.Server.ReadTimeout,
			WriteTimeout: s.cfg.Server.WriteTimeout,
		}

		errCh := make(chan error, 1)
		go func() {
			s.lg.With().Str("addr", srv.Addr).Logger().Info("http server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return err
			}
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.lg.ErrorWith("http server shutdown", err, nil)
		}

		if s.cfg.Archive == nil {
			return nil
		}
		return archiveLog(shutdownCtx, s.cfg.Archive, s.log.Entries(), s.lg)
	},
}

// archiveLog uploads entries to the configured object store.
func archiveLog(ctx context.Context, cfg *filestore.Config, entries []querylog.Entry, lg *logger.Logger) error {
	if len(entries) == 0 {
		return nil
	}

	store, err := minio.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureBucket(ctx, cfg.Bucket); err != nil {
		return err
	}

	key := querylog.ArchiveKey(cfg.Prefix, entries)
	info, err := querylog.Archive(ctx, store, cfg.Bucket, key, entries)
	if err != nil {
		return err
	}
	lg.InfoWith("query log archived", map[string]interface{}{
		"bucket":  cfg.Bucket,
		"key":     info.Key,
		"size":    info.Size,
		"entries": len(entries),
	})
	return nil
}
