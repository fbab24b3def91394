// Command walletbridge is a manual protocol driver. It wires the full engine
// and exposes authorize / sign-message / status / logout subcommands; wallet
// launch URIs are printed to stdout and redirect callbacks are read back from
// stdin, standing in for the host platform's intent dispatch.
package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/lumeo-social/walletbridge/internal/challenge"
	"github.com/lumeo-social/walletbridge/internal/config"
	"github.com/lumeo-social/walletbridge/internal/credstore"
	"github.com/lumeo-social/walletbridge/internal/deeplink"
	"github.com/lumeo-social/walletbridge/internal/keyring"
	"github.com/lumeo-social/walletbridge/internal/logger"
	"github.com/lumeo-social/walletbridge/internal/mwa"
	"github.com/lumeo-social/walletbridge/internal/router"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ring, err := keyring.New(cfg)
	if err != nil {
		slog.Error("failed to initialize keyring", "error", err)
		os.Exit(1)
	}
	slog.Info("initialized keyring", "provider", ring.Name())

	store := credstore.Open(cfg.StorePath, ring)
	defer store.Close()
	creds := credstore.NewCredentials(store)

	callbacks := make(deeplink.ChannelCallbacks, 1)

	mwaClient := mwa.New(mwa.Config{
		IdentityName:               cfg.IdentityName,
		IdentityURI:                cfg.IdentityURI,
		Chain:                      "solana:" + cfg.Cluster,
		AssociationTimeout:         cfg.AssociationTimeout,
		ExtendedAssociationTimeout: cfg.ExtendedAssociationTimeout,
		HandshakeTimeout:           cfg.HandshakeTimeout,
	}, creds, staticRegistry{}, printLauncher{})

	dlClient := deeplink.New(deeplink.Config{
		AppURL:         cfg.AppURL,
		RedirectScheme: cfg.RedirectScheme,
		Cluster:        cfg.Cluster,
	}, creds, printOpener{})

	rt := router.New(router.Config{
		DeeplinkWallets: cfg.DeeplinkWallets,
	}, mwaClient, dlClient, creds, callbacks)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go readCallbacks(ctx, callbacks)

	if err := run(ctx, rt, cfg, os.Args[1:]); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, rt *router.Router, cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: walletbridge <authorize|sign-message|sign-transaction|status|logout> [args]")
	}

	switch args[0] {
	case "authorize":
		wallet := argAt(args, 1)
		if cfg.BackendURL != "" {
			backend := challenge.New(cfg.BackendURL)
			res, sig, err := rt.AuthorizeAndSignMessage(ctx, wallet, backend.GenerateChallenge)
			if err != nil {
				return err
			}
			fmt.Printf("authorized %s via %s, challenge signed (%d bytes)\n",
				res.Address, res.WalletName, len(sig))
			return nil
		}
		res, err := rt.Authorize(ctx, wallet)
		if err != nil {
			return err
		}
		fmt.Printf("authorized %s via %s (%s)\n", res.Address, res.WalletName, res.ClientType)
		return nil

	case "sign-message":
		if len(args) < 2 {
			return fmt.Errorf("usage: walletbridge sign-message <text> [wallet]")
		}
		sig, err := rt.SignMessage(ctx, []byte(args[1]), argAt(args, 2))
		if err != nil {
			return err
		}
		fmt.Printf("signature: %s\n", base64.StdEncoding.EncodeToString(sig))
		return nil

	case "sign-transaction":
		if len(args) < 2 {
			return fmt.Errorf("usage: walletbridge sign-transaction <base64-tx> [wallet]")
		}
		tx, err := base64.StdEncoding.DecodeString(args[1])
		if err != nil {
			return fmt.Errorf("decode transaction argument: %w", err)
		}
		signed, err := rt.SignTransaction(ctx, tx, argAt(args, 2))
		if err != nil {
			return err
		}
		fmt.Printf("signed transaction: %s\n", base64.StdEncoding.EncodeToString(signed))
		return nil

	case "status":
		return printStatus(ctx, rt, cfg)

	case "logout":
		if err := rt.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("credentials cleared")
		return nil

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printStatus(ctx context.Context, rt *router.Router, cfg *config.Config) error {
	fmt.Printf("store: %s\n", cfg.StorePath)
	fmt.Printf("keyring provider: %s\n", cfg.KeyringProvider)
	fmt.Printf("deeplink wallets: %s\n", strings.Join(cfg.DeeplinkWallets, ", "))
	return nil
}

func argAt(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// readCallbacks feeds redirect callback URIs typed on stdin to any waiting
// deeplink operation.
func readCallbacks(ctx context.Context, callbacks deeplink.ChannelCallbacks) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case callbacks <- line:
		case <-ctx.Done():
			return
		}
	}
}

// printLauncher stands in for the platform intent dispatcher: it prints the
// association URI for the operator to open in a wallet.
type printLauncher struct{}

func (printLauncher) Launch(_ context.Context, uri string, target *mwa.AppInfo) error {
	if target != nil {
		fmt.Printf("launch wallet (%s): %s\n", target.Package, uri)
	} else {
		fmt.Printf("launch wallet: %s\n", uri)
	}
	return nil
}

// printOpener prints deeplink launch URLs the same way.
type printOpener struct{}

func (printOpener) OpenURL(_ context.Context, rawURL string) error {
	fmt.Printf("open wallet url: %s\n", rawURL)
	return nil
}

// staticRegistry is the CLI's stand-in for installed-app enumeration: the
// known wallet packages are assumed present so targeted launches resolve.
type staticRegistry struct{}

func (staticRegistry) HandlersForScheme(string) []mwa.AppInfo {
	return []mwa.AppInfo{
		{Package: "app.phantom"},
		{Package: "com.solflare.mobile"},
	}
}
