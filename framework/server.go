package framework

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/saucelabs/parallel-browser-tests/logging"
)

const httpListenerTimeout = time.Second * 10

// Server is an HTTP listener started by StartServer.
type Server struct {
	server *http.Server
	addr   string
	port   int
	done   chan struct{}
}

// StartServer starts an HTTP listener on the specified port, and does not return until the
// listener is definitely accepting requests. A port of zero picks any free port.
//
// The handler never sees HEAD requests for the root path; those are answered directly so
// that we can tell when the listener is active.
func StartServer(port int, handler http.Handler, logger logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NullLogger()
	}
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	s := &Server{
		server: &http.Server{
			Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method == "HEAD" && r.URL.Path == "/" {
					w.WriteHeader(200)
					return
				}
				handler.ServeHTTP(w, r)
			}),
			ReadHeaderTimeout: httpListenerTimeout,
		},
		addr: listener.Addr().String(),
		port: listener.Addr().(*net.TCPAddr).Port,
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("HTTP listener at %s stopped: %s", s.addr, err)
		}
	}()

	// Wait till the server is definitely listening for requests before we run any tests
	localURL := fmt.Sprintf("http://localhost:%d/", s.port)
	deadline := time.NewTimer(httpListenerTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(time.Millisecond * 10)
	defer ticker.Stop()
	checkClient := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	for {
		select {
		case <-deadline.C:
			_ = s.Close()
			return nil, fmt.Errorf("could not detect own listener at %s", s.addr)
		case <-ticker.C:
			resp, err := checkClient.Head(localURL)
			if err == nil {
				_ = resp.Body.Close()
				if resp.StatusCode == 200 {
					return s, nil
				}
			}
		}
	}
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.port
}

// Close stops the listener and waits for it to exit.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), httpListenerTimeout)
	defer cancel()
	err := s.server.Shutdown(ctx)
	<-s.done
	return err
}

// URL returns the base URL of the server as seen from this machine.
func (s *Server) URL() string {
	return fmt.Sprintf("http://localhost:%d", s.port)
}
