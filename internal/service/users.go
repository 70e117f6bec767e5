package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type seedUser struct {
	id       string
	username string
	password string
	role     models.Role
}

var defaultUsers = []seedUser{
	{id: "admin-1", username: "admin", password: "123456", role: models.RoleAdmin},
	{id: "cashier-1", username: "cashier1", password: "password", role: models.RoleCashier},
}

// UserDirectory is the read-only user list used for login
type UserDirectory struct {
	store   store.Store
	timeout time.Duration
	cost    int
	logger  *zap.Logger

	mu    sync.RWMutex
	users []models.User
}

// NewUserDirectory creates an empty directory. cost is the bcrypt cost used
// when seeding default users.
func NewUserDirectory(s store.Store, timeout time.Duration, cost int) *UserDirectory {
	return &UserDirectory{
		store:   s,
		timeout: timeout,
		cost:    cost,
		logger:  util.ComponentLogger("users"),
	}
}

// Load reads the users collection, seeding the default accounts when absent
func (d *UserDirectory) Load(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var users []models.User
	found, err := store.LoadInto(ctx, d.store, models.CollectionUsers, &users)
	if err != nil {
		return err
	}

	if !found {
		users, err = d.seed()
		if err != nil {
			return err
		}
		if err := store.SaveFrom(ctx, d.store, models.CollectionUsers, users); err != nil {
			return fmt.Errorf("failed to seed users: %w", err)
		}
		d.logger.Info("Users seeded with defaults", zap.Int("count", len(users)))
	}

	d.mu.Lock()
	d.users = users
	d.mu.Unlock()
	return nil
}

func (d *UserDirectory) seed() ([]models.User, error) {
	users := make([]models.User, 0, len(defaultUsers))
	for _, u := range defaultUsers {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), d.cost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password for %s: %w", u.username, err)
		}
		users = append(users, models.User{
			ID:       u.id,
			Username: u.username,
			Password: string(hash),
			Role:     u.role,
		})
	}
	return users, nil
}

// Authenticate verifies a username and password and returns the user
// without its credential.
func (d *UserDirectory) Authenticate(username, password string) (models.User, error) {
	d.mu.RLock()
	var user models.User
	found := false
	for _, u := range d.users {
		if u.Username == username {
			user, found = u, true
			break
		}
	}
	d.mu.RUnlock()

	if !found {
		return models.User{}, ErrInvalidCredentials
	}

	err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to verify credentials: %w", err)
	}

	return user.Public(), nil
}

// Get returns a user by id
func (d *UserDirectory) Get(id string) (models.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, u := range d.users {
		if u.ID == id {
			return u.Public(), true
		}
	}
	return models.User{}, false
}

// List returns every user without credentials
func (d *UserDirectory) List() []models.User {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]models.User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u.Public())
	}
	return out
}
