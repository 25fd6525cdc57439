package cache

import (
	"context"
	"log/slog"

	"github.com/dukerupert/errand/internal/model"
)

// UserGetter loads a user by ID, returning nil when absent.
type UserGetter interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// Profiles resolves display profiles through a cache. Cache failures fall
// back to the store.
type Profiles struct {
	cache  Cache[string, model.Profile]
	users  UserGetter
	logger *slog.Logger
}

func NewProfiles(c Cache[string, model.Profile], users UserGetter, logger *slog.Logger) *Profiles {
	return &Profiles{cache: c, users: users, logger: logger.With("component", "profiles")}
}

// Get returns the profile for id. Unknown users get a placeholder name.
func (p *Profiles) Get(ctx context.Context, id string) (model.Profile, error) {
	prof, ok, err := p.cache.Get(ctx, id)
	if err != nil {
		p.logger.Warn("profile cache get", "user_id", id, "error", err)
	}
	if ok {
		return prof, nil
	}

	u, err := p.users.GetByID(ctx, id)
	if err != nil {
		return model.Profile{}, err
	}
	if u == nil {
		return model.Profile{ID: id, Name: "Someone"}, nil
	}
	prof = model.Profile{ID: u.ID, Name: u.Name}
	if prof.Name == "" {
		prof.Name = "Someone"
	}
	if err := p.cache.Set(ctx, id, prof); err != nil {
		p.logger.Warn("profile cache set", "user_id", id, "error", err)
	}
	return prof, nil
}

// Invalidate drops a cached profile after the user changes it.
func (p *Profiles) Invalidate(ctx context.Context, id string) {
	if err := p.cache.Delete(ctx, id); err != nil {
		p.logger.Warn("profile cache delete", "user_id", id, "error", err)
	}
}
