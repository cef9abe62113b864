package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	httpAdapter "github.com/lorrc/agent-console/internal/adapters/primary/http"
	"github.com/lorrc/agent-console/internal/adapters/secondary/realtime"
	"github.com/lorrc/agent-console/internal/adapters/secondary/rest"
	"github.com/lorrc/agent-console/internal/adapters/secondary/sessionstore"
	"github.com/lorrc/agent-console/internal/adapters/secondary/toast"
	"github.com/lorrc/agent-console/internal/auth"
	"github.com/lorrc/agent-console/internal/config"
	"github.com/lorrc/agent-console/internal/core/domain"
	apperrors "github.com/lorrc/agent-console/internal/core/errors"
	"github.com/lorrc/agent-console/internal/core/ports"
	"github.com/lorrc/agent-console/internal/core/services"
	"github.com/lorrc/agent-console/internal/infrastructure/logging"
)

var timeNow = time.Now

// options are the command-line flags
type options struct {
	ticket     string
	envFile    string
	email      string
	statusAddr string
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("console", pflag.ContinueOnError)
	fs.StringVarP(&opts.ticket, "ticket", "t", "", "ticket to open on start (defaults to the last one viewed)")
	fs.StringVar(&opts.envFile, "env-file", "", "dotenv file to load before the environment")
	fs.StringVarP(&opts.email, "email", "e", "", "sign in with this email; the password is read from CONSOLE_PASSWORD or stdin")
	fs.StringVar(&opts.statusAddr, "status-addr", "", "serve /health and /status on this address (overrides STATUS_ADDR)")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdin, os.Stdout); err != nil {
		slog.Error("console stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, stdin io.Reader, stdout io.Writer) error {
	// 1. Load Configuration
	var envFiles []string
	if opts.envFile != "" {
		envFiles = append(envFiles, opts.envFile)
	}
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if opts.statusAddr != "" {
		cfg.Status.Addr = opts.statusAddr
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stderr,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})
	logger.Info("starting console", "version", cfg.App.Version, "config", cfg.String())

	// 3. Session Store
	store, err := sessionstore.OpenBolt(cfg.Session.DBPath, logger)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	// 4. Secondary Adapters
	restCfg := rest.Config{
		BaseURL:           cfg.API.BaseURL,
		Timeout:           cfg.API.Timeout,
		RequestsPerSecond: cfg.API.RateLimitRPS,
		Burst:             cfg.API.RateLimitBurst,
		Logger:            logger,
	}
	support, err := rest.NewSupportClient(restCfg, store)
	if err != nil {
		return err
	}

	notifier := toast.NewConsoleNotifierWithLogger(stdout, logger)

	manager := realtime.NewManager(realtime.Config{
		URL:               cfg.Socket.URL,
		ConnectTimeout:    cfg.Socket.ConnectTimeout,
		ReconnectAttempts: cfg.Socket.ReconnectAttempts,
		ReconnectDelay:    cfg.Socket.ReconnectDelay,
		PingInterval:      cfg.Socket.PingInterval,
		PongWait:          cfg.Socket.PongWait,
	}, realtime.NewGorillaDialer(cfg.Socket.ConnectTimeout), store, notifier, logger)
	defer manager.Disconnect()

	// 5. Services (Core)
	authService := services.NewAuthService(support, store, manager, auth.NewTokenInspector(30*time.Second), logger)
	ticketService := services.NewTicketService(support)

	var customerLookup ports.CustomerLookupService
	if cfg.Commerce.BaseURL != "" {
		commerceCfg := restCfg
		commerceCfg.BaseURL = cfg.Commerce.BaseURL
		commerce, err := rest.NewCommerceClient(ctx, commerceCfg, cfg.Commerce.CustomerCacheTTL)
		if err != nil {
			return err
		}
		customerLookup = services.NewCustomerLookupService(commerce, logger)
	}

	lines := readLines(ctx, stdin)

	session, err := signIn(ctx, authService, opts.email, lines, stdout)
	if err != nil {
		return err
	}
	notifier.Notify(ctx, ports.Toast{Level: ports.ToastSuccess, Message: "Signed in as " + displayName(session)})

	chat := services.NewChatSync(support, manager, store, logger, services.WithReconcileWindow(cfg.Socket.ReconcileWindow))
	defer chat.Close()
	feed := services.NewNotificationFeed(manager, store, logger)
	defer feed.Close()

	c := &console{
		out:       stdout,
		realtime:  manager,
		auth:      authService,
		tickets:   ticketService,
		customers: customerLookup,
		chat:      chat,
		feed:      feed,
		logger:    logger,
	}
	c.watch()
	defer c.close()

	if err := feed.Start(ctx); err != nil {
		logger.Warn("notifications unavailable", "error", err)
	}

	if opts.ticket != "" {
		err = c.openTicket(ctx, opts.ticket)
	} else if err = chat.Restore(ctx); err == nil && chat.Snapshot().TicketID != "" {
		c.printHistory()
	}
	if err != nil {
		c.printf("! %v", err)
	}
	c.printf("type /help for commands")

	// 6. Run the command loop and the status server together
	g, gctx := errgroup.WithContext(ctx)
	loopCtx, cancelLoop := context.WithCancel(gctx)
	defer cancelLoop()

	g.Go(func() error {
		defer cancelLoop()
		return commandLoop(loopCtx, c, lines)
	})

	if cfg.Status.Addr != "" {
		router := httpAdapter.NewRouter(
			loopCtx,
			httpAdapter.ServerConfig{AllowedOrigins: cfg.Status.AllowedOrigins},
			httpAdapter.NewHealthHandler(manager, cfg.App.Version),
			httpAdapter.NewStatusHandler(manager, store, feed, chat),
			logger,
		)
		srv := httpAdapter.NewServer(httpAdapter.ServerConfig{Addr: cfg.Status.Addr}, router, logger)
		g.Go(func() error {
			return srv.ListenAndRun(loopCtx)
		})
	}

	err = g.Wait()
	logger.Info("console shutdown complete")
	return err
}

// signIn logs in when an email is given, otherwise validates the stored
// session.
func signIn(ctx context.Context, authService ports.AuthService, email string, lines <-chan string, out io.Writer) (*domain.Session, error) {
	if email != "" {
		password := os.Getenv("CONSOLE_PASSWORD")
		if password == "" {
			fmt.Fprint(out, "password: ")
			select {
			case password = <-lines:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return authService.Login(ctx, domain.Credentials{Email: email, Password: strings.TrimSpace(password)})
	}

	session, err := authService.Validate(ctx)
	switch {
	case errors.Is(err, apperrors.ErrNoSession):
		return nil, fmt.Errorf("not signed in, pass --email")
	case errors.Is(err, apperrors.ErrUnauthorized):
		return nil, fmt.Errorf("session expired, sign in again with --email: %w", err)
	}
	return session, err
}

func displayName(s *domain.Session) string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Email
}

// readLines feeds stdin lines into a channel that closes on EOF.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// commandLoop runs commands until /quit, end of input or ctx is done.
// Command errors are printed, not returned.
func commandLoop(ctx context.Context, c *console, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := c.handle(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				c.printf("! %v", err)
			}
		}
	}
}
