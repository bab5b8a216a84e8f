package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chfs/chfs/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chfs server",
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := server.New(server.Options{
			ConfigPath:  configPath(),
			DataDir:     dataDirPath(),
			Host:        viper.GetString("host"),
			Port:        viper.GetInt("port"),
			ForceReload: viper.GetBool("reload"),
			Debug:       viper.GetBool("debug"),
		})
		if err != nil {
			return fmt.Errorf("start server: %w", err)
		}

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		case <-stop:
		}

		log.Println("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		log.Println("stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "override the bind address from chfs.yaml")
	serveCmd.Flags().Int("port", 0, "override the bind port from chfs.yaml")
	serveCmd.Flags().Bool("reload", false, "force-enable the config hot-reload watcher")
	viper.BindPFlag("host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("reload", serveCmd.Flags().Lookup("reload"))
}
