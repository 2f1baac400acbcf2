package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vetfolio/authcore/internal/config"
	autherrors "github.com/vetfolio/authcore/internal/errors"
	"github.com/vetfolio/authcore/internal/logging"
	"github.com/vetfolio/authcore/internal/provider"
	"github.com/vetfolio/authcore/internal/server"
	"github.com/vetfolio/authcore/internal/session"
	"github.com/vetfolio/authcore/internal/store"
	"github.com/vetfolio/authcore/internal/vault"
)

var Version = "dev"

// loginTimeout bounds how long a login waits for the user to come back
// from the provider.
const loginTimeout = 10 * time.Minute

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() error {
	fmt.Fprintln(os.Stderr, "usage: authcore <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  login <provider>   sign in through an identity provider")
	fmt.Fprintln(os.Stderr, "  status             show the current session")
	fmt.Fprintln(os.Stderr, "  logout             destroy the session and all stored credentials")

	return fmt.Errorf("no command given")
}

func run(args []string) error {
	if len(args) == 0 {
		return usage()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	logger.Debug("authcore starting", slog.String("version", Version))

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	registry, err := provider.NewRegistry(cfg.ClientIDs(), cfg.RedirectURL)
	if err != nil {
		return fmt.Errorf("building provider registry: %w", err)
	}

	v := vault.New(st)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "login":
		if len(args) < 2 {
			return fmt.Errorf("usage: authcore login <provider> (one of %v)", registry.IDs())
		}

		return runLogin(ctx, cfg, registry, v, st, logger, args[1])
	case "status":
		return runStatus(ctx, registry, v, st, logger)
	case "logout":
		return runLogout(ctx, registry, v, st, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		return usage()
	}
}

// runLogin drives one full authorization round trip: bind the loopback
// listener, hand the browser to the provider, wait for the redirect,
// and redeem it.
func runLogin(ctx context.Context, cfg *config.Config, registry *provider.Registry, v *vault.Vault, st *store.Store, logger *slog.Logger, providerID string) error {
	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	srv := server.New(cfg.CallbackListenAddr, logger)
	if err := srv.Start(); err != nil {
		return err
	}

	mgr := session.NewManager(registry, v, st, &browserNavigator{logger: logger}, logger)

	var cb server.Callback

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cb, err = srv.Wait(gctx)
		return err
	})
	g.Go(func() error {
		return mgr.Login(gctx, providerID)
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("timed out waiting for sign-in")
		}

		return err
	}

	sess, err := mgr.HandleCallback(ctx, cb.Provider, cb.ReturnURL)
	if err != nil {
		if pe := autherrors.AsProviderError(err); pe != nil {
			return fmt.Errorf("the provider declined the sign-in: %s", pe.Error())
		}

		return err
	}

	fmt.Printf("Signed in as %s via %s.\n", sess.User.Email, sess.Provider)
	if sess.User.VeteranVerified {
		fmt.Printf("Veteran status verified by %s (%s).\n", sess.User.VerifiedBy, sess.User.AssuranceLevel)
	}

	return nil
}

// runStatus restores any persisted session and reports it.
func runStatus(ctx context.Context, registry *provider.Registry, v *vault.Vault, st *store.Store, logger *slog.Logger) error {
	mgr := session.NewManager(registry, v, st, &browserNavigator{logger: logger}, logger)
	mgr.Restore(ctx)

	snap := mgr.Snapshot()
	if !snap.Authenticated {
		fmt.Println("Not signed in.")
		return nil
	}

	fmt.Printf("Signed in as %s via %s.\n", snap.User.Email, snap.Provider)
	if snap.User.VeteranVerified {
		fmt.Printf("Veteran status verified by %s (%s).\n", snap.User.VerifiedBy, snap.User.AssuranceLevel)
	} else {
		fmt.Println("Veteran status not verified.")
	}

	return nil
}

// runLogout destroys the session whether or not one exists.
func runLogout(ctx context.Context, registry *provider.Registry, v *vault.Vault, st *store.Store, logger *slog.Logger) error {
	mgr := session.NewManager(registry, v, st, &browserNavigator{logger: logger}, logger)
	if err := mgr.Logout(ctx); err != nil {
		return err
	}

	fmt.Println("Signed out. All stored credentials destroyed.")

	return nil
}

// browserNavigator opens the authorization URL in the default browser.
// The URL is always printed too, so a headless or misconfigured desktop
// still leaves the user a path forward.
type browserNavigator struct {
	logger *slog.Logger
}

func (n *browserNavigator) Navigate(ctx context.Context, rawURL string) error {
	fmt.Printf("Open this URL to sign in:\n\n  %s\n\n", rawURL)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", rawURL)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", rawURL)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", rawURL)
	}

	if err := cmd.Start(); err != nil {
		n.logger.Debug("could not open browser", "error", err)
	}

	return nil
}
