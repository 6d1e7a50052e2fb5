// Command rentbotctl runs maintenance tasks against the RentBot database.
//
//	rentbotctl seed
//	rentbotctl users [-limit 50]
//	rentbotctl credits -n 10 [-phone +263771234567]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/Roland735/rentbot/internal/config"
	"github.com/Roland735/rentbot/internal/db"
	"github.com/Roland735/rentbot/internal/models"
	"github.com/Roland735/rentbot/internal/observability"
	"github.com/Roland735/rentbot/internal/services"
	"github.com/Roland735/rentbot/internal/utils"
)

const usage = `usage: rentbotctl <command> [flags]

commands:
  seed      create collections and insert sample users, listings and a transaction
  users     list users
  credits   set credits for one user (-phone) or for everyone`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load("ctl")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	client, database, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() { _ = db.DisconnectDB(client, logger) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctl := &ctl{
		db:       database,
		users:    services.NewUserService(database, cfg.StarterCredits),
		credits:  services.NewCreditService(database),
		listings: services.NewListingService(database),
		txs:      services.NewTransactionService(database),
		out:      os.Stdout,
		logger:   logger,
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "seed":
		err = ctl.seed(ctx)
	case "users":
		err = ctl.listUsers(ctx, args)
	case "credits":
		err = ctl.setCredits(ctx, args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("Command failed", zap.String("command", cmd), zap.Error(err))
		os.Exit(1)
	}
}

type ctl struct {
	db       *mongo.Database
	users    services.IUserService
	credits  services.ICreditService
	listings services.IListingService
	txs      services.ITransactionService
	out      io.Writer
	logger   *zap.Logger
}

type sampleUser struct {
	phone   string
	credits int
}

var sampleUsers = []sampleUser{
	{"+263771111111", 10},
	{"+263772222222", 3},
	{"+263773333333", 0},
}

// Each sample listing belongs to the sample user at the same index.
var sampleListings = []map[string]interface{}{
	{
		models.FieldTitle: "2 bedroom cottage", models.FieldType: "cottage", models.FieldSuburb: "Avondale",
		models.FieldAddress: "14 Blakiston St", models.FieldRent: 350.0, models.FieldDeposit: 350.0,
		models.FieldBedrooms: "2", models.FieldAmenities: []string{"borehole", "solar"},
		models.FieldContactName: "Tendai",
	},
	{
		models.FieldTitle: "Garden flat near shops", models.FieldType: "flat", models.FieldSuburb: "Mount Pleasant",
		models.FieldAddress: "3 Churchill Ave", models.FieldRent: 450.0, models.FieldDeposit: 450.0,
		models.FieldBedrooms: "1", models.FieldAmenities: []string{"parking", "wifi"},
		models.FieldContactName: "Chipo",
	},
}

func (c *ctl) seed(ctx context.Context) error {
	if err := db.EnsureSchema(ctx, c.db, c.logger); err != nil {
		return err
	}

	for _, u := range sampleUsers {
		if _, err := c.users.EnsureUser(ctx, u.phone); err != nil {
			return err
		}
		if _, err := c.credits.SetBalance(ctx, u.phone, u.credits); err != nil {
			return err
		}
	}

	for i, fields := range sampleListings {
		owner := sampleUsers[i].phone
		existing, err := c.listings.ListByOwner(ctx, owner)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			c.logger.Info("Sample listing already present", observability.Phone(owner))
			continue
		}
		fields[models.FieldContactPhone] = owner
		listing, err := c.listings.CreateDraft(ctx, owner, fields)
		if err != nil {
			return err
		}
		if _, err := c.listings.Publish(ctx, listing.ID); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "listing %s published for %s\n", listing.ID.String(), owner)
	}

	tx := &models.Transaction{
		Phone:   sampleUsers[1].phone,
		Product: models.CreditProduct(5),
		Type:    models.TransactionCreditPurchase,
		Amount:  1.00,
	}
	if err := c.txs.Create(ctx, tx); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "pending transaction %s for %s\n", tx.Reference, tx.Phone)
	fmt.Fprintln(c.out, "seed complete")
	return nil
}

func (c *ctl) listUsers(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("users", flag.ContinueOnError)
	limit := fs.Int64("limit", 50, "maximum number of users")
	if err := fs.Parse(args); err != nil {
		return err
	}

	users, err := c.users.ListUsers(ctx, *limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PHONE\tCREDITS\tROLE\tOPTED OUT\tJOINED")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%d\t%s\t%t\t%s\n", u.Phone, u.Credits, u.Role, u.OptedOut, u.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func (c *ctl) setCredits(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("credits", flag.ContinueOnError)
	n := fs.Int("n", -1, "credit balance to set")
	phone := fs.String("phone", "", "user phone; every user when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *n < 0 {
		return fmt.Errorf("-n must be zero or more")
	}

	target := ""
	if *phone != "" {
		target = utils.NormalizePhone(*phone)
		if !utils.ValidPhone(target) {
			return fmt.Errorf("invalid phone %q", *phone)
		}
	}
	updated, err := c.credits.SetBalance(ctx, target, *n)
	if err != nil {
		return err
	}
	if target != "" && updated == 0 {
		return fmt.Errorf("no user with phone %s", target)
	}
	fmt.Fprintf(c.out, "updated %d user(s) to %d credits\n", updated, *n)
	return nil
}
