package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	klog "k8s.io/klog/v2"

	"github.com/koding/wsrelay"
)

const (
	defaultShutdownTimeout = 30
	readHeaderTimeout      = 10 * time.Second
)

var (
	listenFlag          string
	targetFlag          string
	pathFlag            string
	shutdownTimeoutFlag int
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the relay server",
	Long:  `Start the relay server, accepting WebSocket clients and relaying them to the target`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().StringVarP(&listenFlag, "listen", "l", "", "Address to listen on (default from WSRELAY_LISTEN_ADDR or :8080)")
	startCmd.Flags().StringVarP(&targetFlag, "target", "t", "", "Target WebSocket URL (default from WSRELAY_TARGET_URL)")
	startCmd.Flags().StringVar(&pathFlag, "path", "", "HTTP path clients connect to (default from WSRELAY_PATH or /)")
	startCmd.Flags().IntVar(&shutdownTimeoutFlag, "shutdown-timeout", defaultShutdownTimeout,
		"Graceful shutdown timeout in seconds")
}

func applyFlags() {
	if listenFlag != "" {
		cfg.ListenAddr = listenFlag
	}
	if targetFlag != "" {
		cfg.TargetURL = targetFlag
	}
	if pathFlag != "" {
		cfg.Path = pathFlag
	}
}

func runServer(cmd *cobra.Command) error {
	applyFlags()
	if err := cfg.Validate(); err != nil {
		return err
	}
	target, err := cfg.Target()
	if err != nil {
		return err
	}

	proxy := wsrelay.NewProxy(wsrelay.ProxyOptions{
		Url:                target,
		NaturalTunnel:      cfg.NaturalTunnel,
		ForwardRequestPath: cfg.ForwardPath,
		Relay:              cfg.RelayOptions(),
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newRouter(cfg.Path, cfg.ForwardPath, proxy),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)

	go func() {
		cmd.Printf("Relaying %s%s to %s\n", cfg.ListenAddr, cfg.Path, target.Redacted())
		serverErrors <- server.ListenAndServe()
	}()

	// Channel to listen for an interrupt or terminate signal from the OS.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		return errors.Wrap(err, "server error")

	case sig := <-shutdown:
		cmd.Printf("\nReceived signal %v, starting graceful shutdown...\n", sig)

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(shutdownTimeoutFlag)*time.Second)
		defer cancel()

		// Hijacked WebSocket connections are not tracked by the server, so
		// the relayed pairs are closed explicitly.
		shutdownErr := server.Shutdown(ctx)
		proxy.CloseProxy()
		if shutdownErr != nil {
			if err := server.Close(); err != nil {
				return errors.Wrap(err, "could not stop server gracefully")
			}
			return errors.Wrap(shutdownErr, "could not gracefully shutdown the server")
		}

		klog.Flush()
		cmd.Println("Server stopped gracefully")
	}

	return nil
}

// newRouter serves the relay on path and a health endpoint.
func newRouter(path string, prefix bool, proxy *wsrelay.WebsocketProxy) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthHandler(proxy)).Methods(http.MethodGet)
	if prefix {
		r.PathPrefix(path).Handler(proxy)
	} else {
		r.Handle(path, proxy)
	}
	return r
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

func healthHandler(proxy *wsrelay.WebsocketProxy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthResponse{
			Status:      "ok",
			Connections: proxy.ActiveConnections(),
		})
	}
}
