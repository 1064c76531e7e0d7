package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	protocolcfg "quadlend/config"
	"quadlend/observability/logging"
	telemetry "quadlend/observability/otel"
	"quadlend/services/lendingd/config"
	"quadlend/services/lendingd/middleware"
	"quadlend/services/lendingd/node"
	"quadlend/services/lendingd/server"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/lendingd/config.yaml", "path to lendingd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	env := cfg.Environment
	if env == "" {
		env = strings.TrimSpace(os.Getenv("QUADLEND_ENV"))
	}
	logger, logCloser := logging.SetupWithFile("lendingd", env, cfg.Log.File, logging.ParseLevel(cfg.Log.Level))
	defer logCloser.Close()

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.FromEnv("lendingd", env))
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	logger.Info("lendingd starting",
		"data_dir", cfg.DataDir,
		"protocol", cfg.ProtocolPath,
		logging.MaskField("hmac_secret", cfg.Auth.HMACSecret),
		logging.MaskField("attester_secret", cfg.Credit.AttesterSecret),
	)
	protocol, err := protocolcfg.Load(cfg.ProtocolPath)
	if err != nil {
		log.Fatalf("load protocol: %v", err)
	}
	n, err := node.New(node.Options{
		DataDir:  cfg.DataDir,
		Protocol: protocol,
		Logger:   logger,
		Credit: node.CreditVerifierConfig{
			Secret: cfg.Credit.AttesterSecret,
			Issuer: cfg.Credit.Issuer,
		},
	})
	if err != nil {
		log.Fatalf("open node: %v", err)
	}
	defer n.Close()

	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for name, spec := range cfg.RateLimits {
		limits[name] = middleware.RateLimit{RequestsPerMinute: spec.RequestsPerMinute, Burst: spec.Burst}
	}
	api := server.New(n, server.Config{
		Auth: middleware.AuthConfig{
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew,
		},
		RateLimits:  limits,
		LogRequests: cfg.LogRequests,
	}, logger)

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Fatalf("listen on %s: %v", cfg.ListenAddress, err)
	}
	tlsCfg, err := loadServerTLS(cfg.TLS)
	if err != nil {
		log.Fatalf("configure tls: %v", err)
	}
	if tlsCfg == nil {
		tcpAddr, _ := listener.Addr().(*net.TCPAddr)
		loopback := tcpAddr != nil && tcpAddr.IP != nil && tcpAddr.IP.IsLoopback()
		if !strings.EqualFold(env, "dev") && !loopback {
			log.Fatalf("plaintext lendingd mode is restricted to loopback listeners or dev environment")
		}
		logger.Warn("serving without tls", "listen", cfg.ListenAddress)
	} else {
		listener = tls.NewListener(listener, tlsCfg)
	}

	httpServer := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serviceErr := make(chan error, 1)
	go func() {
		serviceErr <- n.Run(ctx)
	}()
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("lendingd listening", "listen", cfg.ListenAddress, "tls", tlsCfg != nil)
		serverErr <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serviceErr:
		if err != nil {
			logger.Error("background services stopped", "error", err)
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve http", "error", err)
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("forcing server stop", "error", err)
		_ = httpServer.Close()
	}
}

func loadServerTLS(cfg config.TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled() {
		if cfg.AllowInsecure {
			return nil, nil
		}
		return nil, fmt.Errorf("tls credentials are required")
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("load tls keypair: %w", err)
	}
	tlsCfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}
	if cfg.ClientCAPath != "" {
		pem, err := os.ReadFile(cfg.ClientCAPath)
		if err != nil {
			return nil, fmt.Errorf("read client ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("parse client ca: invalid pem data")
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tlsCfg, nil
}
