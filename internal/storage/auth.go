package storage

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"docsplatform/internal/models"
)

// CreateUser registers a new account. Usernames are unique and case-insensitive.
func (s *Storage) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	username := strings.TrimSpace(params.Username)
	if username == "" {
		return models.User{}, errors.New("username is required")
	}
	var hashed string
	if params.Password != "" {
		var err error
		if hashed, err = hashPassword(params.Password); err != nil {
			return models.User{}, fmt.Errorf("hash password: %w", err)
		}
	}

	var user models.User
	err := s.mutate(func(data *dataset) error {
		for _, existing := range data.Users {
			if strings.EqualFold(existing.Username, username) {
				return &ConflictError{Field: "username", Message: "a user with this username already exists"}
			}
		}
		user = models.User{
			ID:           data.nextID("users"),
			Username:     username,
			Email:        strings.TrimSpace(strings.ToLower(params.Email)),
			DisplayName:  strings.TrimSpace(params.DisplayName),
			PasswordHash: hashed,
			Roles:        normalizeRoles(params.Roles),
			CreatedAt:    time.Now().UTC(),
		}
		data.Users[user.ID] = user
		return nil
	})
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

// AuthenticateUser verifies credentials and returns the matching user on
// success. The login may be either the username or the email address.
func (s *Storage) AuthenticateUser(ctx context.Context, login, password string) (models.User, error) {
	if password == "" {
		return models.User{}, errors.New("password is required")
	}
	login = strings.TrimSpace(login)

	s.mu.RLock()
	var (
		user  models.User
		found bool
	)
	for _, candidate := range s.data.Users {
		if strings.EqualFold(candidate.Username, login) || (candidate.Email != "" && strings.EqualFold(candidate.Email, login)) {
			user, found = cloneUser(candidate), true
			break
		}
	}
	s.mu.RUnlock()

	if !found {
		return models.User{}, ErrInvalidCredentials
	}
	return checkPassword(user, password)
}

func checkPassword(user models.User, password string) (models.User, error) {
	if user.PasswordHash == "" {
		return models.User{}, ErrPasswordLoginUnsupported
	}
	if err := verifyPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *Storage) GetUser(ctx context.Context, id int64) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.data.Users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return cloneUser(user), nil
}

func (s *Storage) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.data.Users {
		if strings.EqualFold(user.Username, username) {
			return cloneUser(user), nil
		}
	}
	return models.User{}, ErrNotFound
}

func (s *Storage) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := sortedValues(s.data.Users, func(a, b models.User) bool { return a.ID < b.ID })
	for i := range users {
		users[i] = cloneUser(users[i])
	}
	return users, nil
}

func (s *Storage) UpdateUser(ctx context.Context, id int64, update UserUpdate) (models.User, error) {
	var user models.User
	err := s.mutate(func(data *dataset) error {
		existing, ok := data.Users[id]
		if !ok {
			return ErrNotFound
		}
		if update.DisplayName != nil {
			existing.DisplayName = strings.TrimSpace(*update.DisplayName)
		}
		if update.Email != nil {
			existing.Email = strings.TrimSpace(strings.ToLower(*update.Email))
		}
		if update.Roles != nil {
			existing.Roles = normalizeRoles(*update.Roles)
		}
		data.Users[id] = existing
		user = existing
		return nil
	})
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

// SetUserPassword replaces the stored password hash for the provided user.
func (s *Storage) SetUserPassword(ctx context.Context, id int64, password string) (models.User, error) {
	if len(password) < 8 {
		return models.User{}, errors.New("password must be at least 8 characters")
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	var user models.User
	err = s.mutate(func(data *dataset) error {
		existing, ok := data.Users[id]
		if !ok {
			return ErrNotFound
		}
		existing.PasswordHash = hashed
		data.Users[id] = existing
		user = existing
		return nil
	})
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, passwordHashSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	derived := pbkdf2.Key([]byte(password), salt, passwordHashIterations, passwordHashKeyLength, sha256.New)
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedKey := base64.RawStdEncoding.EncodeToString(derived)
	return fmt.Sprintf("pbkdf2$sha256$%d$%s$%s", passwordHashIterations, encodedSalt, encodedKey), nil
}

func verifyPassword(encodedHash, candidate string) error {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 5 {
		return fmt.Errorf("verify password: invalid hash format")
	}
	if parts[0] != "pbkdf2" || parts[1] != "sha256" {
		return fmt.Errorf("verify password: unsupported hash identifier")
	}
	iterations, err := strconv.Atoi(parts[2])
	if err != nil || iterations <= 0 {
		return fmt.Errorf("verify password: invalid iteration count")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return fmt.Errorf("verify password: decode salt: %w", err)
	}
	storedKey, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("verify password: decode hash: %w", err)
	}
	derived := pbkdf2.Key([]byte(candidate), salt, iterations, len(storedKey), sha256.New)
	if len(derived) != len(storedKey) || subtle.ConstantTimeCompare(derived, storedKey) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}
