package middleware

import (
	"context"
	"regexp"

	"github.com/orbitel/journey/pkg/domain"
	"github.com/orbitel/journey/pkg/ports"
)

type piiMiddleware struct {
	next     ports.SnapshotStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks journey context and
// metadata values whose keys match any of the patterns before they reach
// the backing store.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, snap *domain.Snapshot) error {
	// Deep clone before masking so the in-memory state used by the engine
	// keeps its real values.
	cloned := *snap
	cloned.Journeys = make([]*domain.Journey, len(snap.Journeys))
	for i, j := range snap.Journeys {
		c := j.Clone()
		c.Context = deepCopyMap(j.Context)
		c.Metadata = deepCopyMap(j.Metadata)
		maskMap(c.Context, m.patterns)
		maskMap(c.Metadata, m.patterns)
		cloned.Journeys[i] = c
	}

	return m.next.Save(ctx, &cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, tenantID string) (*domain.Snapshot, error) {
	return m.next.Load(ctx, tenantID)
}

func (m *piiMiddleware) Delete(ctx context.Context, tenantID string) error {
	return m.next.Delete(ctx, tenantID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// Helpers

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if subMap, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(subMap)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = "***"
				break
			}
		}

		if subMap, ok := v.(map[string]any); ok {
			maskMap(subMap, patterns)
		}
	}
}
