// Package server runs the loopback redirect listener that receives the
// provider's return leg. It binds a loopback interface, waits for a
// single callback hit, and hands the raw return URL to the caller; all
// validation happens in the session manager.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	readTimeout     = 30 * time.Second
	writeTimeout    = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Callback is one received redirect: which provider path it hit and the
// full return URL to validate.
type Callback struct {
	Provider  string
	ReturnURL string
}

// CallbackServer is a one-shot loopback HTTP listener. Providers
// redirect the browser to http://127.0.0.1:<port>/auth/<provider>/callback;
// the first complete callback resolves Wait and the server shuts down.
type CallbackServer struct {
	addr   string
	logger *slog.Logger

	ln      net.Listener
	server  *http.Server
	results chan Callback
	once    sync.Once
}

// New creates a callback server for the given loopback listen address.
func New(addr string, logger *slog.Logger) *CallbackServer {
	return &CallbackServer{
		addr:    addr,
		logger:  logger,
		results: make(chan Callback, 1),
	}
}

// Start binds the listener. Binding before navigation means a busy port
// fails the login attempt up front instead of stranding the user at the
// provider.
func (s *CallbackServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("binding callback listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/{provider}/callback", s.handleCallback)
	mux.HandleFunc("GET /auth/{provider}/callback/complete", s.handleComplete)

	s.ln = ln
	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	return nil
}

// Addr returns the bound address. Valid after Start; with a ":0" listen
// address this is where the ephemeral port shows up.
func (s *CallbackServer) Addr() string {
	return s.ln.Addr().String()
}

// Wait serves until the first callback arrives or ctx is cancelled,
// then shuts the listener down.
func (s *CallbackServer) Wait(ctx context.Context) (Callback, error) {
	errc := make(chan error, 1)
	go func() {
		if err := s.server.Serve(s.ln); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	select {
	case cb := <-s.results:
		return cb, nil
	case err := <-errc:
		return Callback{}, fmt.Errorf("callback listener: %w", err)
	case <-ctx.Done():
		return Callback{}, ctx.Err()
	}
}

// handleCallback receives the redirect itself. Query-mode providers
// deliver parameters directly; fragment-mode providers deliver them
// after "#", which never reaches the server, so a request with no query
// gets a bounce page that re-submits the fragment as a query string.
func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.URL.RawQuery == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, bouncePage)
		return
	}

	s.capture(w, r)
}

// handleComplete receives the re-submitted fragment parameters.
func (s *CallbackServer) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.capture(w, r)
}

func (s *CallbackServer) capture(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	returnURL := "http://" + r.Host + r.URL.RequestURI()

	s.once.Do(func() {
		s.logger.Debug("callback received", "provider", provider)
		s.results <- Callback{Provider: provider, ReturnURL: returnURL}
	})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, donePage)
}

// bouncePage re-submits fragment-delivered parameters as a query string
// on the /complete path. Served only when the callback carries no query.
const bouncePage = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>Signing in</title></head>
<body>
<p>Completing sign-in&hellip;</p>
<script>
  var h = window.location.hash;
  var target = window.location.pathname + "/complete";
  window.location.replace(h.length > 1 ? target + "?" + h.substring(1) : target);
</script>
</body>
</html>
`

const donePage = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>Signed in</title></head>
<body>
<p>Sign-in complete. You can close this tab and return to the application.</p>
</body>
</html>
`
