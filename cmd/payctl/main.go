package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/blogauto/server/internal/module/auth"
	"github.com/blogauto/server/internal/module/payment"
	"github.com/blogauto/server/internal/module/payment/domain"
	"github.com/blogauto/server/internal/module/payment/money"
	"github.com/blogauto/server/internal/module/payment/ratelimit"
	"github.com/blogauto/server/internal/module/payment/store"
	"github.com/blogauto/server/internal/shared/config"
	"github.com/blogauto/server/internal/shared/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "payctl",
		Short:         "Multi-provider payment operations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newAuthCmd(),
		newCreateCmd(),
		newStatusCmd(),
		newRefundCmd(),
		newListCmd(),
		newSummaryCmd(),
		newProvidersCmd(),
	)
	return root
}

// app bundles the wired dependencies for one command invocation.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	manager *payment.Manager
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}

	fileCreds, err := auth.NewFileStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	creds := auth.Chain{auth.Env{}, fileCreds}

	st, err := newStore(cfg, log)
	if err != nil {
		return nil, err
	}
	limiter := newLimiter(cfg)
	registry := payment.BuildRegistry(&cfg.Payments, creds)
	metrics := payment.NewMetrics(prometheus.DefaultRegisterer)
	manager := payment.NewManager(registry, st, limiter, metrics, log)

	return &app{cfg: cfg, logger: log, manager: manager}, nil
}

func newStore(cfg *config.Config, log *zap.Logger) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		db, err := gorm.Open(postgres.Open(cfg.Store.Postgres.DSN()), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return store.NewPostgres(db)
	default:
		return store.NewFileStore(filepath.Join(cfg.DataDir, "transactions"), log)
	}
}

func newLimiter(cfg *config.Config) ratelimit.Limiter {
	quotas := make(map[string]ratelimit.Quota, len(cfg.Payments.Providers))
	for name, pc := range cfg.Payments.Providers {
		quotas[name] = ratelimit.Quota{MaxCalls: pc.MaxCalls, Window: pc.Window}
	}
	if cfg.Redis.Address != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return ratelimit.NewRedis(client, quotas)
	}
	return ratelimit.NewMemory(quotas)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider credentials",
	}

	var key, secret string
	set := &cobra.Command{
		Use:   "set <provider>",
		Short: "Store credentials for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			p, err := domain.ParseProvider(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			fs, err := auth.NewFileStore(cfg.DataDir)
			if err != nil {
				return err
			}
			if err := fs.Save(string(p), auth.Credential{APIKey: key, APISecret: secret}); err != nil {
				return err
			}
			fmt.Printf("Stored credentials for %s\n", p)
			return nil
		},
	}
	set.Flags().StringVar(&key, "key", "", "API key or client id")
	set.Flags().StringVar(&secret, "secret", "", "API secret (PayPal only)")
	_ = set.MarkFlagRequired("key")

	list := &cobra.Command{
		Use:   "list",
		Short: "List providers with stored credentials",
		RunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			fs, err := auth.NewFileStore(cfg.DataDir)
			if err != nil {
				return err
			}
			for _, name := range fs.List() {
				cred, _ := fs.Lookup(name)
				fmt.Printf("%s\t%s\n", name, cred.MaskedKey())
			}
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <provider>",
		Short: "Remove stored credentials for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			fs, err := auth.NewFileStore(cfg.DataDir)
			if err != nil {
				return err
			}
			return fs.Delete(args[0])
		},
	}

	cmd.AddCommand(set, list, del)
	return cmd
}

func newCreateCmd() *cobra.Command {
	var (
		providerName string
		amountValue  string
		currency     string
		description  string
		email        string
		name         string
		returnURL    string
		cancelURL    string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a payment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := domain.ParseProvider(providerName)
			if err != nil {
				return err
			}
			amount, err := money.Parse(amountValue, currency)
			if err != nil {
				return fmt.Errorf("parse amount: %w", err)
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			txn, err := a.manager.CreatePayment(cmd.Context(), p, &domain.PaymentRequest{
				Amount:        amount,
				Currency:      currency,
				Description:   description,
				CustomerEmail: email,
				CustomerName:  name,
				ReturnURL:     returnURL,
				CancelURL:     cancelURL,
			})
			if err != nil {
				return err
			}
			return printJSON(txn)
		},
	}
	cmd.Flags().StringVar(&providerName, "provider", "stripe", "Payment provider (stripe or paypal)")
	cmd.Flags().StringVar(&amountValue, "amount", "", "Amount in major units, e.g. 1500 or 19.99")
	cmd.Flags().StringVar(&currency, "currency", "JPY", "ISO 4217 currency code")
	cmd.Flags().StringVar(&description, "description", "", "Payment description")
	cmd.Flags().StringVar(&email, "email", "", "Customer email")
	cmd.Flags().StringVar(&name, "name", "", "Customer name")
	cmd.Flags().StringVar(&returnURL, "return-url", "", "URL after successful checkout")
	cmd.Flags().StringVar(&cancelURL, "cancel-url", "", "URL after cancelled checkout")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <provider> <transaction-id>",
		Short: "Fetch the current status of a transaction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := domain.ParseProvider(args[0])
			if err != nil {
				return err
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			txn, err := a.manager.GetStatus(cmd.Context(), p, args[1])
			if err != nil {
				return err
			}
			return printJSON(txn)
		},
	}
}

func newRefundCmd() *cobra.Command {
	var amountValue, currency string
	cmd := &cobra.Command{
		Use:   "refund <provider> <transaction-id>",
		Short: "Refund a transaction (full refund unless --amount is given)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := domain.ParseProvider(args[0])
			if err != nil {
				return err
			}
			var amount *money.Amount
			if amountValue != "" {
				parsed, err := money.Parse(amountValue, currency)
				if err != nil {
					return fmt.Errorf("parse amount: %w", err)
				}
				amount = &parsed
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			txn, err := a.manager.Refund(cmd.Context(), p, args[1], amount)
			if err != nil {
				return err
			}
			return printJSON(txn)
		},
	}
	cmd.Flags().StringVar(&amountValue, "amount", "", "Partial refund amount in major units")
	cmd.Flags().StringVar(&currency, "currency", "JPY", "Currency of the partial refund amount")
	return cmd
}

func newListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List locally recorded transactions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			txns, err := a.manager.ListTransactions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(txns)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of transactions")
	return cmd
}

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the providers available for dispatch",
		RunE: func(*cobra.Command, []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			for _, p := range a.manager.Providers() {
				fmt.Println(p)
			}
			return nil
		},
	}
}

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Aggregate the recorded payment history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			summary, err := a.manager.GetPaymentSummary(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
}
