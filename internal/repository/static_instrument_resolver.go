package repository

import (
	"context"
	"fmt"
	"sort"

	"ChartSync/internal/domain/models"
	domrepo "ChartSync/internal/domain/repository"
)

// StaticInstrumentResolver resolves instruments from a fixed list, usually the config.
type StaticInstrumentResolver struct {
	byUID map[string]models.Instrument
}

func NewStaticInstrumentResolver(instruments []models.Instrument) (*StaticInstrumentResolver, error) {
	byUID := make(map[string]models.Instrument, len(instruments))
	for _, inst := range instruments {
		if inst.UID == "" {
			return nil, fmt.Errorf("instrument %q has no uid", inst.Code)
		}
		if _, dup := byUID[inst.UID]; dup {
			return nil, fmt.Errorf("duplicate instrument uid %q", inst.UID)
		}
		byUID[inst.UID] = inst
	}
	return &StaticInstrumentResolver{byUID: byUID}, nil
}

func (r *StaticInstrumentResolver) Resolve(_ context.Context, uid string) (models.Instrument, error) {
	inst, ok := r.byUID[uid]
	if !ok {
		return models.Instrument{}, fmt.Errorf("%q: %w", uid, domrepo.ErrInstrumentNotFound)
	}
	return inst, nil
}

// UIDs lists the known instrument ids in sorted order.
func (r *StaticInstrumentResolver) UIDs() []string {
	out := make([]string, 0, len(r.byUID))
	for uid := range r.byUID {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out
}
