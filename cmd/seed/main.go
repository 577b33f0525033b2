// Command seed loads users and their notification preferences from a YAML
// file into the configured store. Re-running it updates existing users.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"smartspray.io/notifier/internal/api/middleware"
	"smartspray.io/notifier/internal/config"
	"smartspray.io/notifier/internal/infrastructure"
	"smartspray.io/notifier/internal/pkg/logger"
	"smartspray.io/notifier/internal/repository"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	file := flag.String("file", "seed.yaml", "YAML file listing users to seed")
	printTokens := flag.Bool("tokens", false, "print a development JWT for every seeded user")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	f, err := os.Open(*file)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	seed, err := parseSeed(f)
	if err != nil {
		return err
	}

	ctx := context.Background()
	writer, closeWriter, err := openWriter(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeWriter()

	users, err := seedUsers(ctx, writer, seed, time.Now().UTC())
	if err != nil {
		return err
	}

	if *printTokens {
		jwtCfg := middleware.JWTConfig{
			SigningKey: []byte(cfg.Security.JWTSigningKey),
			Issuer:     cfg.Security.JWTIssuer,
			ExpiresIn:  30 * 24 * time.Hour,
		}
		for _, u := range users {
			tok, _, err := middleware.GenerateToken(jwtCfg, u.ID, u.Name, []string{u.Role})
			if err != nil {
				return fmt.Errorf("token for %s: %w", u.ID, err)
			}
			fmt.Printf("%s\t%s\n", u.ID, tok)
		}
	}

	logger.Info("Data seeding completed successfully", zap.Int("users", len(users)))
	return nil
}

// seedFile is the YAML document accepted by the command.
type seedFile struct {
	Users []seedUser `yaml:"users"`
}

type seedUser struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Phone    string `yaml:"phone"`
	Role     string `yaml:"role"`
	Active   *bool  `yaml:"active"`
	Password string `yaml:"password"`
	Notify   notify `yaml:"notify"`
}

// notify mirrors the schema defaults when a flag is omitted: email and
// critical alerts on, sms and whatsapp off.
type notify struct {
	Email    *bool `yaml:"email"`
	SMS      *bool `yaml:"sms"`
	WhatsApp *bool `yaml:"whatsapp"`
	Critical *bool `yaml:"critical"`
}

func parseSeed(r io.Reader) (*seedFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var seed seedFile
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("seed file is empty")
		}
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	seen := make(map[string]struct{}, len(seed.Users))
	for i, u := range seed.Users {
		id := strings.TrimSpace(u.ID)
		if id == "" {
			return nil, fmt.Errorf("users[%d]: id is required", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("users[%d]: duplicate id %q", i, id)
		}
		seen[id] = struct{}{}
	}
	return &seed, nil
}

func orDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func (u seedUser) toUser(now time.Time) (*repository.User, error) {
	user := &repository.User{
		ID:             strings.TrimSpace(u.ID),
		Name:           u.Name,
		Email:          strings.TrimSpace(u.Email),
		Phone:          strings.TrimSpace(u.Phone),
		Role:           u.Role,
		Active:         orDefault(u.Active, true),
		NotifyEmail:    orDefault(u.Notify.Email, true),
		NotifySMS:      orDefault(u.Notify.SMS, false),
		NotifyWhatsApp: orDefault(u.Notify.WhatsApp, false),
		NotifyCritical: orDefault(u.Notify.Critical, true),
		CreatedAt:      now,
	}
	if user.Name == "" {
		user.Name = user.ID
	}
	if user.Role == "" {
		user.Role = "user"
	}
	if u.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password for %s: %w", user.ID, err)
		}
		user.PasswordHash = string(hash)
	}
	return user, nil
}

type userWriter interface {
	UpsertUser(ctx context.Context, u *repository.User) error
}

func seedUsers(ctx context.Context, w userWriter, seed *seedFile, now time.Time) ([]*repository.User, error) {
	users := make([]*repository.User, 0, len(seed.Users))
	for _, su := range seed.Users {
		u, err := su.toUser(now)
		if err != nil {
			return nil, err
		}
		if err := w.UpsertUser(ctx, u); err != nil {
			return nil, fmt.Errorf("upsert user %s: %w", u.ID, err)
		}
		logger.Info("Seeded user",
			zap.String("user_id", u.ID),
			zap.String("role", u.Role),
			zap.Bool("active", u.Active),
		)
		users = append(users, u)
	}
	return users, nil
}

// openWriter opens the configured store. Tables are created if missing.
func openWriter(ctx context.Context, cfg config.DatabaseConfig) (userWriter, func(), error) {
	if cfg.IsSQLite() {
		store, err := repository.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	}

	db, err := infrastructure.NewDatabaseClients(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init database: %w", err)
	}
	if err := repository.MigratePostgres(ctx, db.Pool); err != nil {
		db.Close()
		return nil, nil, err
	}
	return repository.NewPostgresStore(db.Pool), db.Close, nil
}
