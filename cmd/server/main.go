package main

import (
	"context"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"github.com/Tyrowin/roomchat/internal/server"
)

func main() {
	envErr := server.LoadEnvFile()

	config := server.NewConfigFromEnv()
	logger := server.NewLogger(config.LogLevel, config.LogFormat, os.Stdout)
	if envErr != nil {
		logger.Warn().Err(envErr).Msg("could not load .env file, using environment variables")
	}

	srv := server.New(config, logger)

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		srv.Config().ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"chat-server": func(ctx context.Context) error {
				logger.Info().Msg("graceful shutdown initiated")
				return srv.Shutdown(ctx)
			},
		},
	)

	exitCode := <-wait
	logger.Info().Int("code", exitCode).Msg("server exited")
	os.Exit(exitCode)
}
