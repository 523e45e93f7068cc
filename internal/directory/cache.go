package directory

import (
	"time"

	"github.com/echoboard/echoboard/internal/domain"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CacheOptions sizes the two read-through caches. TTLs are expire-after-write.
type CacheOptions struct {
	SlugSize    int
	SlugTTL     time.Duration
	ProjectSize int
	ProjectTTL  time.Duration
}

// Caches holds the slug and project caches. Entries are derived state only:
// dropping any entry at any time is always safe.
type Caches struct {
	slug *expirable.LRU[string, string]
	// project caches the lookup result including absence: a present entry
	// with a nil project means the backend reported no such project.
	project *expirable.LRU[string, *domain.Project]
}

// NewCaches builds bounded expire-after-write caches.
func NewCaches(opts CacheOptions) *Caches {
	if opts.SlugSize <= 0 {
		opts.SlugSize = 10000
	}
	if opts.ProjectSize <= 0 {
		opts.ProjectSize = 1000
	}
	return &Caches{
		slug:    expirable.NewLRU[string, string](opts.SlugSize, nil, opts.SlugTTL),
		project: expirable.NewLRU[string, *domain.Project](opts.ProjectSize, nil, opts.ProjectTTL),
	}
}

func (c *Caches) SlugGet(slug string) (string, bool) {
	return c.slug.Get(slug)
}

func (c *Caches) SlugPut(slug, projectID string) {
	c.slug.Add(slug, projectID)
}

func (c *Caches) SlugInvalidate(slug string) {
	c.slug.Remove(slug)
}

func (c *Caches) ProjectGet(projectID string) (*domain.Project, bool) {
	return c.project.Get(projectID)
}

func (c *Caches) ProjectPut(projectID string, project *domain.Project) {
	c.project.Add(projectID, project)
}

func (c *Caches) ProjectInvalidate(projectID string) {
	c.project.Remove(projectID)
}
