package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	logger "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/util/logger"
)

const shutdownTimeout = 5 * time.Second

// Server はローカル実行用の HTTP トリガーです。
//
//	POST /invoke  取り込み処理を 1 回実行し、結果をそのまま返す
//	GET  /health  死活監視
type Server struct {
	invoker Invoker
	router  *mux.Router
	addr    string
}

// NewServer はルーティングを登録した Server を作成します。
func NewServer(invoker Invoker, port string) *Server {
	s := &Server{
		invoker: invoker,
		router:  mux.NewRouter(),
		addr:    ":" + port,
	}
	s.router.HandleFunc("/invoke", s.invoke).Methods(http.MethodPost)
	s.router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	return s
}

// Handler はルーターを返します。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run は ctx がキャンセルされるまでリクエストを受け付け、その後グレースフルに停止します。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP サーバーを %s で起動します。", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Infof("HTTP サーバーを停止します...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP サーバーの停止に失敗しました: %w", err)
	}
	return nil
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request) {
	result := s.invoker.Handle(r.Context())
	writeJSON(w, result.StatusCode, result)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("レスポンスの書き込みに失敗しました: %v", err)
	}
}
