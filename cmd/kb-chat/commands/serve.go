package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/jinford/kb-chat/internal/interface/httpapi"
)

// ServeAction はHTTP APIサーバを起動するコマンドのアクション
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	handler := httpapi.NewHandler(
		appCtx.Projects,
		appCtx.Documents,
		appCtx.Retriever,
		appCtx.Engine,
		appCtx.Logger,
	)
	router := httpapi.NewRouter(handler)

	srv := &http.Server{
		Addr:    appCtx.Config.Server.Addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		appCtx.Logger.Info("HTTPサーバを起動", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// 停止シグナル受信後、処理中のリクエストを待ってから終了する
	appCtx.Logger.Info("HTTPサーバを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
