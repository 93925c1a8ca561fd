// ABOUTME: Seed-file loader that bootstraps users, roles, menus, and agents
// ABOUTME: Seeding is idempotent; existing records are left untouched

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
	"golang.org/x/crypto/bcrypt"
)

// SeedFile is the TOML document describing the initial dataset. Every
// section is optional; an empty file seeds nothing.
type SeedFile struct {
	Users  []SeedUser  `toml:"users"`
	Roles  []SeedRole  `toml:"roles"`
	Menus  []SeedMenu  `toml:"menus"`
	Agents []SeedAgent `toml:"agents"`
	Depts  []SeedDept  `toml:"depts"`
}

// SeedUser describes a user to create if absent. Password is hashed with
// bcrypt before storage and never written back to disk.
type SeedUser struct {
	Username    string   `toml:"username"`
	Email       string   `toml:"email"`
	Password    string   `toml:"password"`
	IsSuperuser bool     `toml:"is_superuser"`
	Roles       []string `toml:"roles"`
}

// SeedRole describes a role and the agents it is scoped to by name.
type SeedRole struct {
	Name   string   `toml:"name"`
	Desc   string   `toml:"desc"`
	Agents []string `toml:"agents"`
}

// SeedMenu describes one navigation entry. Children nest directly in the
// TOML so the tree reads naturally.
type SeedMenu struct {
	MenuType  string     `toml:"menu_type"`
	Name      string     `toml:"name"`
	Path      string     `toml:"path"`
	Component string     `toml:"component"`
	Icon      string     `toml:"icon"`
	Order     int        `toml:"order"`
	Redirect  string     `toml:"redirect"`
	Hidden    bool       `toml:"hidden"`
	Keepalive bool       `toml:"keepalive"`
	Children  []SeedMenu `toml:"children"`
}

// SeedAgent describes an agent endpoint to register.
type SeedAgent struct {
	Name     string `toml:"name"`
	Endpoint string `toml:"endpoint"`
	Desc     string `toml:"desc"`
}

// SeedDept describes a department.
type SeedDept struct {
	Name  string `toml:"name"`
	Desc  string `toml:"desc"`
	Order int    `toml:"order"`
}

// LoadSeedFile parses a seed file from disk.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	var seed SeedFile
	if err := toml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}
	return &seed, nil
}

// Seed applies a seed file to the store. Records are matched by their
// natural keys (username, role name, menu name within a parent, agent
// name) and skipped when they already exist, so re-running at startup is
// safe.
func Seed(ctx context.Context, s Store, seed *SeedFile, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "seed")

	agentIDs := make(map[string]int64)
	existingAgents, _, err := s.ListAgents(ctx, AgentFilter{Page: Page{PageSize: 1000}})
	if err != nil {
		return fmt.Errorf("listing agents: %w", err)
	}
	for _, a := range existingAgents {
		agentIDs[a.Name] = a.ID
	}
	for _, sa := range seed.Agents {
		if _, ok := agentIDs[sa.Name]; ok {
			continue
		}
		agent := &Agent{Name: sa.Name, Endpoint: sa.Endpoint, Desc: sa.Desc, IsActive: true}
		if err := s.CreateAgent(ctx, agent); err != nil {
			return fmt.Errorf("seeding agent %s: %w", sa.Name, err)
		}
		agentIDs[sa.Name] = agent.ID
		logger.Info("seeded agent", "name", sa.Name)
	}

	for _, sd := range seed.Depts {
		dept := &Dept{Name: sd.Name, Desc: sd.Desc, Order: sd.Order}
		existing, _, err := s.ListDepts(ctx, DeptFilter{Name: sd.Name, Page: Page{PageSize: 1}})
		if err != nil {
			return fmt.Errorf("listing depts: %w", err)
		}
		if len(existing) > 0 {
			continue
		}
		if err := s.CreateDept(ctx, dept); err != nil {
			return fmt.Errorf("seeding dept %s: %w", sd.Name, err)
		}
		logger.Info("seeded dept", "name", sd.Name)
	}

	roleIDs := make(map[string]int64)
	for _, sr := range seed.Roles {
		role, err := s.GetRoleByName(ctx, sr.Name)
		switch {
		case err == nil:
			roleIDs[sr.Name] = role.ID
			continue
		case errors.Is(err, ErrNotFound):
		default:
			return fmt.Errorf("looking up role %s: %w", sr.Name, err)
		}

		role = &Role{Name: sr.Name, Desc: sr.Desc}
		if err := s.CreateRole(ctx, role); err != nil {
			return fmt.Errorf("seeding role %s: %w", sr.Name, err)
		}
		roleIDs[sr.Name] = role.ID

		var ids []int64
		for _, name := range sr.Agents {
			id, ok := agentIDs[name]
			if !ok {
				logger.Warn("seed role references unknown agent", "role", sr.Name, "agent", name)
				continue
			}
			ids = append(ids, id)
		}
		if len(ids) > 0 {
			if err := s.SetRoleAgents(ctx, role.ID, ids); err != nil {
				return fmt.Errorf("seeding role agents for %s: %w", sr.Name, err)
			}
		}
		logger.Info("seeded role", "name", sr.Name)
	}

	for _, su := range seed.Users {
		_, err := s.GetUserByUsername(ctx, su.Username)
		switch {
		case err == nil:
			continue
		case errors.Is(err, ErrNotFound):
		default:
			return fmt.Errorf("looking up user %s: %w", su.Username, err)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(su.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hashing seed password for %s: %w", su.Username, err)
		}
		user := &User{
			Username:     su.Username,
			Email:        su.Email,
			PasswordHash: string(hash),
			IsActive:     true,
			IsSuperuser:  su.IsSuperuser,
		}
		if err := s.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("seeding user %s: %w", su.Username, err)
		}

		var ids []int64
		for _, name := range su.Roles {
			id, ok := roleIDs[name]
			if !ok {
				role, err := s.GetRoleByName(ctx, name)
				if err != nil {
					logger.Warn("seed user references unknown role", "user", su.Username, "role", name)
					continue
				}
				id = role.ID
			}
			ids = append(ids, id)
		}
		if len(ids) > 0 {
			if err := s.SetUserRoles(ctx, user.ID, ids); err != nil {
				return fmt.Errorf("seeding user roles for %s: %w", su.Username, err)
			}
		}
		logger.Info("seeded user", "username", su.Username)
	}

	if len(seed.Menus) > 0 {
		existing, err := s.ListMenus(ctx)
		if err != nil {
			return fmt.Errorf("listing menus: %w", err)
		}
		if len(existing) == 0 {
			if err := seedMenus(ctx, s, seed.Menus, 0); err != nil {
				return err
			}
			logger.Info("seeded menus", "count", countMenus(seed.Menus))
		}
	}

	return nil
}

func seedMenus(ctx context.Context, s Store, menus []SeedMenu, parentID int64) error {
	for _, sm := range menus {
		menuType := sm.MenuType
		if menuType == "" {
			if len(sm.Children) > 0 {
				menuType = MenuTypeCatalog
			} else {
				menuType = MenuTypeMenu
			}
		}
		menu := &Menu{
			MenuType:  menuType,
			Name:      sm.Name,
			Path:      sm.Path,
			Component: sm.Component,
			Icon:      sm.Icon,
			Order:     sm.Order,
			ParentID:  parentID,
			IsHidden:  sm.Hidden,
			Redirect:  sm.Redirect,
			Keepalive: sm.Keepalive,
		}
		if err := s.CreateMenu(ctx, menu); err != nil {
			return fmt.Errorf("seeding menu %s: %w", sm.Name, err)
		}
		if err := seedMenus(ctx, s, sm.Children, menu.ID); err != nil {
			return err
		}
	}
	return nil
}

func countMenus(menus []SeedMenu) int {
	n := len(menus)
	for _, m := range menus {
		n += countMenus(m.Children)
	}
	return n
}
