// Command seed fills the configured datastore with fake users and sessions.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/pflag"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"sessionlog/internal/api"
	"sessionlog/internal/config"
	"sessionlog/internal/models"
	"sessionlog/internal/storage"
)

type seedOptions struct {
	Users           int
	SessionsPerUser int
	Seed            int64
	Now             time.Time
}

type seedCounts struct {
	Users    int
	Sessions int
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "seed:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	flags := config.NewFlagSet("seed")
	users := flags.Int("users", 10, "number of users to create")
	sessions := flags.Int("sessions-per-user", 5, "number of sessions to create for each user")
	seed := flags.Int64("seed", 0, "random seed (0 picks one at random)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *users < 0 || *sessions < 0 {
		return errors.New("--users and --sessions-per-user must not be negative")
	}

	cfg, err := config.FromFlags(flags)
	if err != nil {
		return err
	}

	repo, err := storage.Open(ctx, cfg.Storage.DriverConfig())
	if err != nil {
		return fmt.Errorf("open %s datastore: %w", cfg.Storage.Driver, err)
	}
	defer func() { _ = repo.Close(context.Background()) }()

	counts, err := seedRepository(ctx, repo, seedOptions{
		Users:           *users,
		SessionsPerUser: *sessions,
		Seed:            *seed,
		Now:             time.Now(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %d users and %d sessions into the %s datastore.\n", counts.Users, counts.Sessions, cfg.Storage.Driver)
	return nil
}

func seedRepository(ctx context.Context, repo storage.Repository, opts seedOptions) (seedCounts, error) {
	faker := gofakeit.New(opts.Seed)
	var counts seedCounts

	for i := 0; i < opts.Users; i++ {
		userID := primitive.NewObjectIDFromTimestamp(opts.Now)
		name := faker.Name()
		user := api.NewUserDocument(models.Document{
			models.FieldID:   userID,
			models.FieldName: name,
			"email":          strings.ToLower(faker.Email()),
			"username":       faker.Username(),
		}, opts.Now)
		if _, err := repo.InsertOne(ctx, models.CollectionUsers, user); err != nil {
			return counts, fmt.Errorf("insert user %q: %w", name, err)
		}
		counts.Users++

		for j := 0; j < opts.SessionsPerUser; j++ {
			played := faker.DateRange(opts.Now.AddDate(-1, 0, 0), opts.Now)
			session := api.NewSessionDocument(userID, models.Document{
				models.FieldSessionName: fmt.Sprintf("%s %s", faker.Adjective(), faker.Noun()),
				models.FieldDate:        played.UTC().Format(time.RFC3339),
				models.FieldLocation:    faker.City(),
				models.FieldCash:        faker.Bool(),
				"buyIn":                 float64(faker.Number(20, 500)),
				"hours":                 faker.Float64Range(0.5, 12),
			}, opts.Now)
			if _, err := repo.InsertOne(ctx, models.CollectionSessions, session); err != nil {
				return counts, fmt.Errorf("insert session for user %s: %w", userID.Hex(), err)
			}
			counts.Sessions++
		}
	}
	return counts, nil
}
