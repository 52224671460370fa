// Command bootstrap-admin seeds or updates an administrator account in the
// datastore and, optionally, an organization owned by it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"docsplatform/internal/models"
	"docsplatform/internal/storage"
)

type bootstrapInput struct {
	Username    string
	Email       string
	DisplayName string
	Password    string
	OrgSlug     string
	OrgName     string
}

func main() {
	var (
		jsonPath    string
		postgresDSN string
		input       bootstrapInput
	)

	flag.StringVar(&jsonPath, "json", "", "Path to the JSON datastore (store.json)")
	flag.StringVar(&postgresDSN, "postgres-dsn", "", "Postgres connection string")
	flag.StringVar(&input.Username, "username", "admin", "Username for the admin account")
	flag.StringVar(&input.Email, "email", "", "Email address for the admin account")
	flag.StringVar(&input.DisplayName, "name", "Administrator", "Display name for the admin account")
	flag.StringVar(&input.Password, "password", "", "Password for the admin account")
	flag.StringVar(&input.OrgSlug, "org", "", "Slug of an organization to create with the admin as owner")
	flag.StringVar(&input.OrgName, "org-name", "", "Display name for --org (defaults to the slug)")
	flag.Parse()

	if jsonPath == "" && postgresDSN == "" {
		fatalf("either --json or --postgres-dsn must be provided")
	}
	if jsonPath != "" && postgresDSN != "" {
		fatalf("only one datastore option may be provided")
	}
	if err := input.validate(); err != nil {
		fatalf("%v", err)
	}

	repo, err := openRepository(jsonPath, postgresDSN)
	if err != nil {
		fatalf("open datastore: %v", err)
	}
	defer closeRepository(repo)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	user, created, err := bootstrapAdmin(ctx, repo, input)
	if err != nil {
		fatalf("bootstrap admin: %v", err)
	}
	state := "updated"
	if created {
		state = "created"
	}
	fmt.Printf("Admin user %s (%s) %s successfully.\n", user.Username, user.Email, state)

	if input.OrgSlug != "" {
		org, orgCreated, err := bootstrapOrganization(ctx, repo, user, input)
		if err != nil {
			fatalf("bootstrap organization: %v", err)
		}
		if orgCreated {
			fmt.Printf("Organization %s created with %s as owner.\n", org.Slug, user.Username)
		} else {
			fmt.Printf("Organization %s already exists; left unchanged.\n", org.Slug)
		}
	}
	fmt.Println("Remember to rotate this password after the first login.")
}

func (in *bootstrapInput) validate() error {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.OrgSlug = strings.TrimSpace(in.OrgSlug)
	in.OrgName = strings.TrimSpace(in.OrgName)
	switch {
	case in.Username == "":
		return errors.New("--username is required")
	case in.Email == "":
		return errors.New("--email is required")
	case len(in.Password) < 8:
		return errors.New("--password must be at least 8 characters")
	case in.DisplayName == "":
		return errors.New("--name cannot be empty")
	}
	if in.OrgSlug != "" && in.OrgName == "" {
		in.OrgName = in.OrgSlug
	}
	return nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func openRepository(jsonPath, postgresDSN string) (storage.Repository, error) {
	if jsonPath != "" {
		return storage.NewJSONRepository(jsonPath)
	}
	return storage.NewPostgresRepository(postgresDSN, storage.WithPostgresAutoMigrate(true))
}

func closeRepository(repo storage.Repository) {
	type closer interface {
		Close(context.Context) error
	}
	if c, ok := repo.(closer); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	}
}

func bootstrapAdmin(ctx context.Context, repo storage.Repository, in bootstrapInput) (models.User, bool, error) {
	existing, err := repo.GetUserByUsername(ctx, in.Username)
	switch {
	case err == nil:
		return updateAdmin(ctx, repo, existing, in)
	case !errors.Is(err, storage.ErrNotFound):
		return models.User{}, false, err
	}

	user, err := repo.CreateUser(ctx, storage.CreateUserParams{
		Username:    in.Username,
		DisplayName: in.DisplayName,
		Email:       in.Email,
		Roles:       []string{"admin"},
		Password:    in.Password,
	})
	if err != nil {
		return models.User{}, false, err
	}
	return user, true, nil
}

func updateAdmin(ctx context.Context, repo storage.Repository, existing models.User, in bootstrapInput) (models.User, bool, error) {
	roles := ensureAdminRole(existing.Roles)

	var update storage.UserUpdate
	if existing.DisplayName != in.DisplayName {
		update.DisplayName = &in.DisplayName
	}
	if existing.Email != in.Email {
		update.Email = &in.Email
	}
	if !slices.Equal(existing.Roles, roles) {
		update.Roles = &roles
	}

	if update.DisplayName != nil || update.Email != nil || update.Roles != nil {
		if _, err := repo.UpdateUser(ctx, existing.ID, update); err != nil {
			return models.User{}, false, err
		}
	}

	updated, err := repo.SetUserPassword(ctx, existing.ID, in.Password)
	if err != nil {
		return models.User{}, false, err
	}
	return updated, false, nil
}

func bootstrapOrganization(ctx context.Context, repo storage.Repository, owner models.User, in bootstrapInput) (models.Organization, bool, error) {
	existing, err := repo.GetOrganizationBySlug(ctx, in.OrgSlug)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, storage.ErrNotFound):
		return models.Organization{}, false, err
	}
	org, err := repo.CreateOrganization(ctx, storage.CreateOrganizationParams{
		Slug:     in.OrgSlug,
		Name:     in.OrgName,
		Email:    owner.Email,
		OwnerIDs: []int64{owner.ID},
	})
	if err != nil {
		return models.Organization{}, false, err
	}
	return org, true, nil
}

func ensureAdminRole(existing []string) []string {
	seen := make(map[string]struct{})
	for _, role := range existing {
		trimmed := strings.TrimSpace(role)
		if trimmed == "" {
			continue
		}
		seen[strings.ToLower(trimmed)] = struct{}{}
	}
	seen["admin"] = struct{}{}
	roles := make([]string, 0, len(seen))
	for role := range seen {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}
