// Package auth manages registered users, the current session user and the
// bearer tokens handed to API clients.
package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
	"taskboard/storage"
)

var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", minPasswordLength)
	ErrInvalidName        = errors.New("name is required")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrInvalidCredentials = errors.New("email or password is incorrect")
	ErrUserNotFound       = errors.New("user not found")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	DemoEmail    = "demo@example.com"
	DemoPassword = "password123"
	DemoName     = "Demo User"
)

// ValidateEmail reports whether email looks like an address.
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidatePassword returns every rule password breaks.
func ValidatePassword(password string) []error {
	var errs []error
	if len(password) < minPasswordLength {
		errs = append(errs, ErrWeakPassword)
	}
	return errs
}

// Users is the user registry, kept as one JSON array in the KV store.
type Users struct {
	kv     storage.KV
	logger *log.Logger
	now    func() time.Time
	verify func(password, hash string) bool

	// guards every read and write of the user list
	mu sync.Mutex
}

func NewUsers(kv storage.KV, logger *log.Logger) *Users {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Users{kv: kv, logger: logger, now: time.Now, verify: VerifyPassword}
}

func (u *Users) stamp() time.Time {
	return u.now().UTC().Truncate(time.Millisecond)
}

func (u *Users) list(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	if _, err := storage.GetJSON(ctx, u.kv, storage.UsersKey, &users); err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	return users, nil
}

func (u *Users) save(ctx context.Context, users []domain.User) error {
	if err := storage.SetJSON(ctx, u.kv, storage.UsersKey, users); err != nil {
		return fmt.Errorf("save users: %w", err)
	}
	return nil
}

func findByEmail(users []domain.User, email string) int {
	for i, usr := range users {
		if strings.EqualFold(usr.Email, email) {
			return i
		}
	}
	return -1
}

// SignUp registers a new user.
func (u *Users) SignUp(ctx context.Context, email, password, name string) (domain.User, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if !ValidateEmail(email) {
		return domain.User{}, ErrInvalidEmail
	}
	if errs := ValidatePassword(password); len(errs) > 0 {
		return domain.User{}, errors.Join(errs...)
	}
	if name == "" {
		return domain.User{}, ErrInvalidName
	}

	hash, err := HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	users, err := u.list(ctx)
	if err != nil {
		return domain.User{}, err
	}
	if findByEmail(users, email) >= 0 {
		return domain.User{}, ErrEmailTaken
	}
	now := u.stamp()
	usr := domain.User{
		ID:        "user_" + uuid.NewString(),
		Email:     email,
		Password:  hash,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.save(ctx, append(users, usr)); err != nil {
		return domain.User{}, err
	}
	u.logger.WithField("user", usr.ID).Info("user signed up")
	return usr, nil
}

// Login checks the credentials and records the user as the current session
// user. Legacy password hashes are upgraded on a successful login.
func (u *Users) Login(ctx context.Context, email, password string) (domain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	users, err := u.list(ctx)
	if err != nil {
		return domain.User{}, err
	}
	i := findByEmail(users, strings.TrimSpace(email))
	if i < 0 {
		u.verify(password, unknownUserHash())
		return domain.User{}, ErrInvalidCredentials
	}
	if !u.verify(password, users[i].Password) {
		return domain.User{}, ErrInvalidCredentials
	}
	usr := users[i]
	if NeedsRehash(usr.Password) {
		if hash, err := HashPassword(password); err == nil {
			usr.Password = hash
			users[i] = usr
			if err := u.save(ctx, users); err != nil {
				u.logger.WithError(err).Warn("failed to upgrade password hash")
			}
		}
	}
	if err := storage.SetJSON(ctx, u.kv, storage.CurrentUserKey, usr.Public()); err != nil {
		return domain.User{}, fmt.Errorf("save current user: %w", err)
	}
	return usr, nil
}

// Logout clears the current session user.
func (u *Users) Logout(ctx context.Context) error {
	return u.kv.RemoveItem(ctx, storage.CurrentUserKey)
}

// Current returns the user of the current session, if any.
func (u *Users) Current(ctx context.Context) (domain.User, bool, error) {
	var usr domain.User
	ok, err := storage.GetJSON(ctx, u.kv, storage.CurrentUserKey, &usr)
	if err != nil {
		return domain.User{}, false, fmt.Errorf("load current user: %w", err)
	}
	return usr, ok, nil
}

// Get looks a user up by id.
func (u *Users) Get(ctx context.Context, id string) (domain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	users, err := u.list(ctx)
	if err != nil {
		return domain.User{}, err
	}
	for _, usr := range users {
		if usr.ID == id {
			return usr, nil
		}
	}
	return domain.User{}, ErrUserNotFound
}

// UpdateProfile renames a user. The current session record follows when it
// belongs to the same user.
func (u *Users) UpdateProfile(ctx context.Context, id, name string) (domain.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.User{}, ErrInvalidName
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	users, err := u.list(ctx)
	if err != nil {
		return domain.User{}, err
	}
	for i := range users {
		if users[i].ID != id {
			continue
		}
		users[i].Name = name
		users[i].UpdatedAt = u.stamp()
		if err := u.save(ctx, users); err != nil {
			return domain.User{}, err
		}
		if cur, ok, err := u.Current(ctx); err == nil && ok && cur.ID == id {
			if err := storage.SetJSON(ctx, u.kv, storage.CurrentUserKey, users[i].Public()); err != nil {
				u.logger.WithError(err).Warn("failed to refresh current user")
			}
		}
		return users[i], nil
	}
	return domain.User{}, ErrUserNotFound
}

// SeedDemo creates the demo account once per store.
func (u *Users) SeedDemo(ctx context.Context) error {
	_, done, err := u.kv.GetItem(ctx, storage.DemoInitializedKey)
	if err != nil {
		return err
	}
	if done {
		return nil
	}
	users, err := u.list(ctx)
	if err != nil {
		return err
	}
	if findByEmail(users, DemoEmail) < 0 {
		if _, err := u.SignUp(ctx, DemoEmail, DemoPassword, DemoName); err != nil && !errors.Is(err, ErrEmailTaken) {
			return fmt.Errorf("create demo user: %w", err)
		}
	}
	return u.kv.SetItem(ctx, storage.DemoInitializedKey, "true")
}
