// Package web exposes the observability surface of the daemon.  The discovery
// core itself has no listener; this server only reports what it discovered.
package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/clusterpeers/ecspeers"
)

// PeerSource is a source of the last published membership of one topology.
type PeerSource interface {
	Topology() string
	Nodes() []ecspeers.Node
}

type route struct {
	path    string
	handler http.HandlerFunc
	method  string
	name    string
}

var done = struct{}{}

// Server serves /healthcheck and /peers.
type Server struct {
	logger  logrus.FieldLogger
	address string
	sources []PeerSource
	Router  *mux.Router
}

func NewServer(logger logrus.FieldLogger, address string, sources ...PeerSource) (*Server, error) {
	server := &Server{
		logger:  logger,
		address: address,
		sources: sources,
	}

	routes := []route{
		{path: "/healthcheck", handler: server.healthCheck, method: "GET", name: "healthcheck_get"},
		{path: "/peers", handler: server.peers, method: "GET", name: "peers_get"},
	}

	router, err := createRoutes(routes)
	if err != nil {
		return nil, err
	}
	router.NotFoundHandler = server.logRequest(http.HandlerFunc(server.notFound))
	router.Use(server.logRequest)
	server.Router = router

	logger.WithField("address", address).Info("Created server")
	return server, nil
}

func createRoutes(routes []route) (*mux.Router, error) {
	router := mux.NewRouter()

	for _, route := range routes {
		r := router.HandleFunc(route.path, route.handler).Methods(route.method).Name(route.name)
		if err := r.GetError(); err != nil {
			return nil, fmt.Errorf("error creating route %s: %v", route.name, err)
		}
	}

	return router, nil
}

func (s *Server) notFound(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(404)
	_, _ = w.Write([]byte("not found"))
}

// healthCheck reports if the daemon is up.  Discovery failures are not
// surfaced here, they heal on the next poll.
func (s *Server) healthCheck(resp http.ResponseWriter, req *http.Request) {
	resp.Header().Set("content-type", "application/json")
	resp.WriteHeader(http.StatusOK)
	enc := jsoniter.NewEncoder(resp)
	_ = enc.Encode(map[string]string{
		"status": "OK",
	})
}

// peers reports the membership published on the last successful poll of every
// topology.
func (s *Server) peers(resp http.ResponseWriter, req *http.Request) {
	peers := make(map[string][]ecspeers.Node, len(s.sources))
	for _, source := range s.sources {
		nodes := source.Nodes()
		if nodes == nil {
			// Force it render as an array, not null
			nodes = []ecspeers.Node{}
		}
		peers[source.Topology()] = nodes
	}

	resp.Header().Set("content-type", "application/json")
	resp.WriteHeader(http.StatusOK)
	enc := jsoniter.NewEncoder(resp)
	_ = enc.Encode(peers)
}

func (s *Server) logRequest(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		logFields := logrus.Fields{
			"srcip": strings.Split(req.RemoteAddr, ":")[0],
			"path":  req.URL.Path,
		}
		if route := mux.CurrentRoute(req); route != nil {
			logFields["route"] = route.GetName()
		} else {
			logFields["method"] = req.Method
		}

		start := time.Now()
		handler.ServeHTTP(w, req)
		dur := time.Since(start)

		logFields["duration"] = float64(dur) / float64(time.Millisecond)
		s.logger.WithFields(logFields).Debug("request")
	})
}

func (s *Server) Run(ctx context.Context) {
	server := &http.Server{
		Addr:    s.address,
		Handler: s.Router,
	}

	chStopped := make(chan struct{}, 1)
	go s.waitAndStop(ctx, server, chStopped)

	s.logger.WithField("address", server.Addr).Info("listening")

	err := server.ListenAndServe()
	if err != http.ErrServerClosed {
		s.logger.WithError(err).Error("web server failed")
		return
	}

	// Wait for graceful shutdown of existing connections

	select {
	case <-chStopped:
		// happy
	case <-time.After(6 * time.Second):
		s.logger.Info("timeout waiting for webserver to stop")
	}
}

// waitAndStop will gracefully shut down the Server when the Context passed is cancelled.  It signals
// on chStopped when it is done.  There is no guarantee that it will actually signal, if the server
// does not shutdown.
func (s *Server) waitAndStop(ctx context.Context, server *http.Server, chStopped chan<- struct{}) {
	<-ctx.Done()

	s.logger.Info("shutting down web server")
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := server.Shutdown(timeoutCtx)
	if err != nil {
		s.logger.WithError(err).Warn("failed to stop web server")
	}
	chStopped <- done
}
