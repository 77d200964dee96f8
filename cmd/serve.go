package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ticket-geocoder/internal/export"
	"github.com/sells-group/ticket-geocoder/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a read-only status server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newMux(st),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("status server listening", zap.Int("port", port))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return eris.Wrap(srv.Shutdown(shutdownCtx), "server shutdown")
		case err := <-errCh:
			return eris.Wrap(err, "server")
		}
	},
}

func newMux(st store.Store) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := st.Stats(r.Context())
		if err != nil {
			zap.L().Error("stats handler", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	mux.HandleFunc("GET /review", func(w http.ResponseWriter, r *http.Request) {
		queue, err := export.ReviewQueue(r.Context(), st, nil)
		if err != nil {
			zap.L().Error("review handler", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "review queue unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, queue)
	})

	mux.HandleFunc("GET /records/{ticketKey}", func(w http.ResponseWriter, r *http.Request) {
		rec, err := st.GetCurrent(r.Context(), r.PathValue("ticketKey"))
		if err != nil {
			zap.L().Error("record handler", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "record unavailable"})
			return
		}
		if rec == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no record"})
			return
		}
		writeJSON(w, http.StatusOK, rec)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (defaults to config)")
	rootCmd.AddCommand(serveCmd)
}
