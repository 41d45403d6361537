package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/cyclopcam/imclass/pkg/nn"
	"github.com/cyclopcam/imclass/pkg/storage"
	"github.com/cyclopcam/imclass/server/camera"
	"github.com/cyclopcam/imclass/server/config"
	"github.com/cyclopcam/imclass/server/monitor"
	"github.com/cyclopcam/imclass/server/resultdb"
	"github.com/cyclopcam/imclass/server/snapshots"
	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// Server owns the monitor, and everything that consumes its results
type Server struct {
	Log              logs.Log
	Config           *config.Config
	Monitor          *monitor.Monitor
	History          *resultdb.ResultDB  // nil if history is disabled
	Archiver         *snapshots.Archiver // nil if snapshots are disabled
	ShutdownComplete chan error          // Receives one value after Shutdown() has finished

	signalIn      chan os.Signal
	shutdownOnce  sync.Once
	serversLock   sync.Mutex
	httpServers   []*http.Server
	httpRouter    *httprouter.Router
	wsUpgrader    websocket.Upgrader
	historyWriter *resultdb.Writer
	snapshotStore storage.Storage
}

// NewServer takes ownership of classifier. If anything fails, classifier is closed.
func NewServer(logger logs.Log, cfg *config.Config, classifier nn.Classifier) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		classifier.Close()
		return nil, fmt.Errorf("Invalid configuration: %w", err)
	}
	mon, err := monitor.NewMonitor(logger, classifier, &monitor.MonitorOptions{
		TopK:            cfg.Model.TopK,
		MovingAvgPeriod: cfg.Model.MovingAvg,
		QueueSize:       cfg.Model.QueueSize,
	})
	if err != nil {
		classifier.Close()
		return nil, err
	}
	s := &Server{
		Log:              logger,
		Config:           cfg,
		Monitor:          mon,
		ShutdownComplete: make(chan error, 1),
	}
	if err := s.start(); err != nil {
		s.closeServices()
		return nil, err
	}
	return s, nil
}

func (s *Server) start() error {
	cfg := s.Config
	if cfg.History.Enabled {
		history, err := resultdb.Open(s.Log, cfg.History.DB, cfg.History.MaxRecords)
		if err != nil {
			return err
		}
		s.History = history
		s.historyWriter = history.StartWriter(s.Monitor.AddWatcher(), cfg.History.Every, cfg.HistoryPurgeInterval())
	}

	if cfg.Snapshots.Storage != nil {
		store, err := openStorage(s.Log, cfg.Snapshots.Storage)
		if err != nil {
			return err
		}
		s.snapshotStore = store
		s.Archiver = snapshots.NewArchiver(s.Log, store, &snapshots.Options{
			Threshold:   cfg.Snapshots.Threshold,
			MinInterval: cfg.MinSnapshotInterval(),
			Quality:     cfg.Snapshots.Quality,
			Classes:     cfg.Snapshots.Classes,
		})
		s.Archiver.Start(s.Monitor.AddWatcher())
	}

	if err := s.setupHttpRoutes(); err != nil {
		return err
	}

	// The source is attached last, so that no results are missed by the consumers above
	if cfg.Source.Directory != "" {
		src, err := camera.NewDirectorySource(s.Log, cfg.Source.Directory, cfg.Source.FPS, cfg.Source.Rotation, cfg.Source.Loop)
		if err != nil {
			return err
		}
		if err := s.Monitor.AttachSource(src); err != nil {
			src.Close()
			return err
		}
	} else {
		s.Log.Infof("No frame source configured. Frames can only be classified via the API.")
	}
	return nil
}

func openStorage(logger logs.Log, cfg *config.StorageConfig) (storage.Storage, error) {
	if cfg.GCS != nil {
		// Google Cloud Storage
		return storage.NewStorageGCS(context.Background(), logger, cfg.GCS.Bucket, cfg.GCS.Public)
	} else if cfg.Filesystem != nil {
		// Filesystem
		return storage.NewStorageFS(logger, cfg.Filesystem.Root)
	}
	return nil, errors.New("One of the storage options must be configured (i.e. either 'filesystem' or 'gcs')")
}

// Handler returns the root HTTP handler, which is useful for tests
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

func (s *Server) addHttpServer(srv *http.Server) {
	s.serversLock.Lock()
	s.httpServers = append(s.httpServers, srv)
	s.serversLock.Unlock()
}

// ListenHTTP blocks until the server is shut down.
// addr example: ":8080"
func (s *Server) ListenHTTP(addr string) error {
	s.Log.Infof("Listening on %v", addr)
	srv := &http.Server{
		Addr:    addr,
		Handler: s.httpRouter,
	}
	s.addHttpServer(srv)
	return srv.ListenAndServe()
}

// ListenHTTPS serves HTTPS on port 443, with a certificate from Let's Encrypt.
// Port 80 answers ACME HTTP challenges, and redirects everything else to HTTPS.
// ListenHTTPS blocks until the server is shut down.
func (s *Server) ListenHTTPS(domain, certDir string) error {
	s.Log.Infof("Obtaining certificate for %v (cache in %v)", domain, certDir)
	certmagic.DefaultACME.Agreed = true
	magic := certmagic.NewDefault()
	magic.Storage = &certmagic.FileStorage{Path: certDir}
	acme := certmagic.NewACMEIssuer(magic, certmagic.DefaultACME)
	magic.Issuers = []certmagic.Issuer{acme}

	redirect := &http.Server{
		Addr:    ":80",
		Handler: acme.HTTPChallengeHandler(http.HandlerFunc(redirectToHTTPS)),
	}
	s.addHttpServer(redirect)
	go func() {
		if err := redirect.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Log.Errorf("HTTP challenge server failed: %v", err)
		}
	}()

	if err := magic.ManageSync(context.Background(), []string{domain}); err != nil {
		return fmt.Errorf("Failed to obtain certificate for %v: %w", domain, err)
	}
	tlsConfig := magic.TLSConfig()
	tlsConfig.NextProtos = append([]string{"h2", "http/1.1"}, tlsConfig.NextProtos...)
	tlsConfig.MinVersion = tls.VersionTLS12

	s.Log.Infof("Listening on :443 (%v)", domain)
	srv := &http.Server{
		Addr:      ":443",
		Handler:   s.httpRouter,
		TLSConfig: tlsConfig,
	}
	s.addHttpServer(srv)
	return srv.ListenAndServeTLS("", "")
}

func redirectToHTTPS(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "https://"+r.Host+r.URL.RequestURI(), http.StatusMovedPermanently)
}

func (s *Server) ListenForKillSignals() {
	s.Log.Infof("ListenForKillSignals starting")
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'. ListenForKillSignals will exit after shutdown", sig.String())
			s.Shutdown()
		} else {
			// This path gets hit when Shutdown() is called by something other than ourselves, and Shutdown() closes the signalIn channel.
			s.Log.Infof("signalIn closed. ListenForKillSignals will exit now")
		}
	}()
}

// Shutdown stops the HTTP servers, then the monitor and its consumers.
// When finished, a value is sent on ShutdownComplete.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.Log.Infof("Shutdown")
		if s.signalIn != nil {
			signal.Stop(s.signalIn)
			close(s.signalIn)
		}

		var firstErr error
		s.serversLock.Lock()
		servers := s.httpServers
		s.serversLock.Unlock()
		for _, srv := range servers {
			s.Log.Infof("Closing HTTP server %v", srv.Addr)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := srv.Shutdown(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
			cancel()
		}

		s.closeServices()

		if firstErr != nil {
			s.Log.Warnf("Shutdown complete, with error: %v", firstErr)
		} else {
			s.Log.Infof("Shutdown complete")
		}
		s.ShutdownComplete <- firstErr
	})
}

// Closing the monitor closes all watcher channels, which lets the consumers drain and exit
func (s *Server) closeServices() {
	s.Monitor.Close()
	if s.Archiver != nil {
		s.Archiver.Stop()
	}
	if s.historyWriter != nil {
		s.historyWriter.Stop()
	}
	if s.History != nil {
		s.History.Close()
	}
	if closer, ok := s.snapshotStore.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			s.Log.Warnf("Error closing snapshot storage: %v", err)
		}
	}
}
