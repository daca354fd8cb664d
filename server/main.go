// The CollabCode sync server: one websocket endpoint that keeps every
// participant's copy of a room document in step with the authoritative
// one held here.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/grandcat/zeroconf"

	"github.com/Nandu0007/collab-code-editor/hub"
	"github.com/Nandu0007/collab-code-editor/protocol"
)

const defaultPort = 3000

func main() {
	if err := run(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func run() error {
	port := defaultPort
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		port = p
	}
	addr := flag.String("addr", fmt.Sprintf(":%d", port), "address to listen on")
	announce := flag.Bool("announce", true, "register the server on the LAN via mDNS")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := hub.New(log)

	wg := new(sync.WaitGroup)

	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		bridge, err := hub.NewRedisBridge(ctx, log, redisAddr)
		if err != nil {
			return fmt.Errorf("connecting to redis at %s: %w", redisAddr, err)
		}
		defer bridge.Close()
		h.SetBridge(bridge)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bridge.Run(ctx, h); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("redis bridge stopped", "err", err)
			}
		}()
		log.Info("cross-instance fanout enabled", "redis", redisAddr)
	}

	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, req)
			log.Info("handled", "method", req.Method, "url", req.URL.Path,
				"status", m.Code, "duration", m.Duration)
		})
	})
	r.HandleFunc("/ws", h.ServeWS)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	if *announce {
		if _, p, err := net.SplitHostPort(*addr); err == nil {
			if pn, err := strconv.Atoi(p); err == nil {
				host, _ := os.Hostname()
				mdns, err := zeroconf.Register("CollabCode-"+host, protocol.MDNSService, "local.", pn, nil, nil)
				if err != nil {
					log.Warn("mDNS registration failed", "err", err)
				} else {
					defer mdns.Shutdown()
					log.Info("mDNS service registered", "service", protocol.MDNSService, "port", pn)
				}
			}
		}
	}

	httpServer := &http.Server{Addr: *addr, Handler: r}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("collabcode server listening", "addr", *addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server listen failed", "err", err)
		}
	}()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	log.Info("signal caught, shutting down", "sig", sig.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		httpServer.Close()
	}

	wg.Wait()
	return nil
}
