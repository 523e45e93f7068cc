// Package directory is the project/slug directory: a consistency-critical
// layer over a conditional-write key-value backend. It guarantees a slug
// resolves to at most one project, config updates are optimistically
// concurrent, and slug renames stay reversible during a grace window.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/echoboard/echoboard/internal/domain"
	"github.com/echoboard/echoboard/internal/dynamo"
)

// Options configures a Directory. Table names and cache toggles are
// externally supplied; the directory holds no hidden state.
type Options struct {
	ProjectTable       string
	SlugTable          string
	SlugByProjectIndex string

	// SlugCacheRead / ProjectCacheRead gate cache reads globally;
	// per-call useCache=false always bypasses regardless.
	SlugCacheRead    bool
	ProjectCacheRead bool

	// MigrationGracePeriod is how long a released slug keeps resolving
	// after a rename. Defaults to 24h.
	MigrationGracePeriod time.Duration
}

// Directory owns Project and Slug records. It is stateless request-scoped
// logic over the shared backend and caches; all cross-entity consistency is
// pushed down to the backend's conditional writes.
type Directory struct {
	store  dynamo.Store
	caches *Caches
	opts   Options
	now    func() time.Time
}

// New creates a Directory.
func New(store dynamo.Store, caches *Caches, opts Options) *Directory {
	if opts.MigrationGracePeriod <= 0 {
		opts.MigrationGracePeriod = 24 * time.Hour
	}
	return &Directory{
		store:  store,
		caches: caches,
		opts:   opts,
		now:    time.Now,
	}
}

// GetProjectBySlug resolves slug to its project, cache-first unless
// useCache is false. Returns ErrNotFound when either hop misses.
func (d *Directory) GetProjectBySlug(ctx context.Context, slug string, useCache bool) (*domain.Project, error) {
	if d.opts.SlugCacheRead && useCache {
		if projectID, ok := d.caches.SlugGet(slug); ok {
			return d.GetProject(ctx, projectID, useCache)
		}
	}

	it, err := d.store.Get(ctx, d.opts.SlugTable, dynamo.Key{"slug": slug}, !useCache)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, fmt.Errorf("slug %q: %w", slug, ErrNotFound)
	}
	rec, err := decodeSlug(it)
	if err != nil {
		return nil, err
	}
	d.caches.SlugPut(slug, rec.ProjectID)
	return d.GetProject(ctx, rec.ProjectID, useCache)
}

// GetProject loads a project by id, cache-first unless useCache is false.
// A backend hit with an outdated config schema is upgraded lazily.
func (d *Directory) GetProject(ctx context.Context, projectID string, useCache bool) (*domain.Project, error) {
	if d.opts.ProjectCacheRead && useCache {
		if project, ok := d.caches.ProjectGet(projectID); ok {
			if project == nil {
				return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
			}
			return project, nil
		}
	}

	it, err := d.store.Get(ctx, d.opts.ProjectTable, dynamo.Key{"projectId": projectID}, !useCache)
	if err != nil {
		return nil, err
	}
	if it == nil {
		d.caches.ProjectPut(projectID, nil)
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	model, err := decodeProject(it)
	if err != nil {
		return nil, err
	}
	project, err := d.loadWithUpgrade(ctx, model)
	if err != nil {
		return nil, err
	}
	d.caches.ProjectPut(projectID, project)
	return project, nil
}

// GetProjects loads a set of projects in one batch get. useCache=false
// forces strongly-consistent reads. Genuinely absent ids are skipped;
// unprocessed keys are retried by the backend adapter until serviced.
func (d *Directory) GetProjects(ctx context.Context, projectIDs []string, useCache bool) ([]*domain.Project, error) {
	if len(projectIDs) == 0 {
		return nil, nil
	}
	keys := make([]dynamo.Key, len(projectIDs))
	for i, id := range projectIDs {
		keys[i] = dynamo.Key{"projectId": id}
	}
	items, err := d.store.BatchGet(ctx, d.opts.ProjectTable, keys, !useCache)
	if err != nil {
		return nil, err
	}
	projects := make([]*domain.Project, 0, len(items))
	for _, it := range items {
		model, err := decodeProject(it)
		if err != nil {
			return nil, err
		}
		project, err := d.loadWithUpgrade(ctx, model)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
		d.caches.ProjectPut(project.ProjectID(), project)
	}
	return projects, nil
}

// CreateProject atomically creates the project record, its primary
// subdomain slug, and its custom-domain slug when set. Either all commit or
// none do; a taken slug (or reused projectId) surfaces as ErrSlugTaken.
func (d *Directory) CreateProject(ctx context.Context, accountID, projectID string, conf domain.VersionedConfig) (*domain.Project, error) {
	subdomain := conf.Config.Slug
	if err := validateSubdomain(subdomain); err != nil {
		return nil, err
	}
	customDomain := conf.Config.Domain
	if customDomain != "" {
		if err := validateDomain(customDomain); err != nil {
			return nil, err
		}
	}

	configJSON, err := conf.Config.MarshalJSONString()
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	model := domain.ProjectModel{
		AccountID:     accountID,
		ProjectID:     projectID,
		Version:       conf.Version,
		SchemaVersion: conf.Config.SchemaVersion,
		ConfigJSON:    configJSON,
	}

	subdomainItem, err := encodeSlug(slugRecord{Slug: subdomain, ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	puts := []dynamo.TransactPut{
		{
			Table: d.opts.SlugTable,
			Item:  subdomainItem,
			Cond:  dynamo.Cond{KeyAttr: "slug", KeyAbsent: true},
		},
		{
			Table: d.opts.ProjectTable,
			Item:  encodeProject(model),
			Cond:  dynamo.Cond{KeyAttr: "projectId", KeyAbsent: true},
		},
	}
	if customDomain != "" {
		domainItem, err := encodeSlug(slugRecord{Slug: customDomain, ProjectID: projectID})
		if err != nil {
			return nil, err
		}
		puts = append(puts, dynamo.TransactPut{
			Table: d.opts.SlugTable,
			Item:  domainItem,
			Cond:  dynamo.Cond{KeyAttr: "slug", KeyAbsent: true},
		})
	}

	if err := d.store.TransactPuts(ctx, puts); err != nil {
		if errors.Is(err, dynamo.ErrConditionFailed) {
			return nil, fmt.Errorf("create project %s: %w", projectID, ErrSlugTaken)
		}
		return nil, err
	}

	project, err := domain.NewProject(model)
	if err != nil {
		return nil, err
	}
	d.caches.ProjectPut(projectID, project)
	d.caches.SlugPut(subdomain, projectID)
	if customDomain != "" {
		d.caches.SlugPut(customDomain, projectID)
	}
	return project, nil
}

// slugChange is one rename in a migration batch. Either side may be empty:
// a custom domain can be added or removed.
type slugChange struct {
	from string
	to   string
}

// UpdateConfig writes a new project configuration. When previousVersion is
// non-empty the write is conditioned on the stored version still matching;
// a mismatch surfaces as ErrVersionConflict with all slug claims rolled
// back. Subdomain or domain changes run the slug migration protocol: claim
// the new slug, commit the project record, then release the old slug into
// its grace period so it keeps resolving until clients migrate.
func (d *Directory) UpdateConfig(ctx context.Context, projectID, previousVersion string, conf domain.VersionedConfig) error {
	current, err := d.GetProject(ctx, projectID, false)
	if err != nil {
		return err
	}

	var changes []slugChange
	if conf.Config.Domain != current.Config().Domain {
		if conf.Config.Domain != "" {
			if err := validateDomain(conf.Config.Domain); err != nil {
				return err
			}
		}
		changes = append(changes, slugChange{from: current.Config().Domain, to: conf.Config.Domain})
	}
	if conf.Config.Slug != current.Config().Slug {
		if err := validateSubdomain(conf.Config.Slug); err != nil {
			return err
		}
		changes = append(changes, slugChange{from: current.Config().Slug, to: conf.Config.Slug})
	}

	// Claim every new slug before touching the project record. The
	// OrKeyAbsent disjunct lets a project reclaim a slug it still owns,
	// so changing your mind mid-migration is not a conflict.
	var claimed []string
	for _, change := range changes {
		slog.Info("project changing slug",
			"project_id", projectID,
			"from", change.from,
			"to", change.to,
		)
		if change.to == "" {
			continue
		}
		claimItem, err := encodeSlug(slugRecord{Slug: change.to, ProjectID: projectID})
		if err != nil {
			d.unclaimSlugs(ctx, projectID, claimed)
			return err
		}
		err = d.store.Put(ctx, d.opts.SlugTable, claimItem, dynamo.Cond{
			KeyAttr:     "slug",
			OrKeyAbsent: true,
			FieldEquals: map[string]string{"projectId": projectID},
		})
		if err != nil {
			d.unclaimSlugs(ctx, projectID, claimed)
			if errors.Is(err, dynamo.ErrConditionFailed) {
				return fmt.Errorf("claim slug %q: %w", change.to, ErrSlugTaken)
			}
			return err
		}
		d.caches.SlugInvalidate(change.to)
		claimed = append(claimed, change.to)
	}

	configJSON, err := conf.Config.MarshalJSONString()
	if err != nil {
		d.unclaimSlugs(ctx, projectID, claimed)
		return fmt.Errorf("encode config: %w", err)
	}
	cond := dynamo.Cond{}
	if previousVersion != "" {
		cond.FieldEquals = map[string]string{"version": previousVersion}
	}
	err = d.store.Update(ctx, d.opts.ProjectTable, dynamo.Key{"projectId": projectID}, dynamo.Update{
		Set: dynamo.Item{
			"configJson":    dynamo.S(configJSON),
			"version":       dynamo.S(conf.Version),
			"schemaVersion": dynamo.N(strconv.FormatInt(conf.Config.SchemaVersion, 10)),
		},
	}, cond)
	if err != nil {
		d.unclaimSlugs(ctx, projectID, claimed)
		if errors.Is(err, dynamo.ErrConditionFailed) {
			return fmt.Errorf("update project %s: %w", projectID, ErrVersionConflict)
		}
		return err
	}

	// The authoritative write is durable from here; the caller must never
	// observe success with a stale cached project.
	defer d.caches.ProjectInvalidate(projectID)

	// Release each old slug into its grace period. The old name keeps
	// resolving until the window elapses so cached DNS/CDN entries drain;
	// a housekeeper reclaims it afterwards.
	for _, change := range changes {
		if change.from == "" {
			continue
		}
		graceItem, err := encodeSlug(slugRecord{
			Slug:      change.from,
			ProjectID: projectID,
			ExpiresAt: d.now().Add(d.opts.MigrationGracePeriod).Unix(),
		})
		if err != nil {
			return err
		}
		err = d.store.Put(ctx, d.opts.SlugTable, graceItem, dynamo.Cond{
			KeyAttr:     "slug",
			KeyPresent:  true,
			FieldEquals: map[string]string{"projectId": projectID},
		})
		if err != nil {
			if !errors.Is(err, dynamo.ErrConditionFailed) {
				return err
			}
			slog.Warn("previous slug already gone during migration",
				"project_id", projectID,
				"from", change.from,
				"to", change.to,
			)
		}
		d.caches.SlugInvalidate(change.from)
	}
	return nil
}

// unclaimSlugs rolls back slug claims after a failed migration. Deletes are
// conditioned on the claim still being ours so a legitimate concurrent
// claim is never destroyed. Best effort: an orphaned claim self-heals by
// later overwrite or expiry, so failures are logged, not escalated.
func (d *Directory) unclaimSlugs(ctx context.Context, projectID string, slugs []string) {
	for _, slug := range slugs {
		_, err := d.store.Delete(ctx, d.opts.SlugTable, dynamo.Key{"slug": slug}, dynamo.Cond{
			KeyAttr:     "slug",
			KeyPresent:  true,
			FieldEquals: map[string]string{"projectId": projectID},
		})
		if err != nil && !errors.Is(err, dynamo.ErrConditionFailed) {
			slog.Warn("failed to roll back claimed slug",
				"slug", slug,
				"project_id", projectID,
				"error", err,
			)
		}
		d.caches.SlugInvalidate(slug)
	}
}

// AddWebhookListener registers a listener on the project.
func (d *Directory) AddWebhookListener(ctx context.Context, projectID string, listener domain.WebhookListener) error {
	return d.updateWebhookListener(ctx, projectID, listener, true)
}

// RemoveWebhookListener removes a listener from the project.
func (d *Directory) RemoveWebhookListener(ctx context.Context, projectID string, listener domain.WebhookListener) error {
	return d.updateWebhookListener(ctx, projectID, listener, false)
}

func (d *Directory) updateWebhookListener(ctx context.Context, projectID string, listener domain.WebhookListener, add bool) error {
	upd := dynamo.Update{}
	if add {
		upd.AddToSet = map[string][]string{"webhookListeners": {listener.Pack()}}
	} else {
		upd.DeleteFromSet = map[string][]string{"webhookListeners": {listener.Pack()}}
	}
	err := d.store.Update(ctx, d.opts.ProjectTable, dynamo.Key{"projectId": projectID}, upd, dynamo.Cond{
		KeyAttr:    "projectId",
		KeyPresent: true,
	})
	if err != nil {
		if errors.Is(err, dynamo.ErrConditionFailed) {
			slog.Warn("webhook listener update on missing project", "project_id", projectID)
			return nil
		}
		return err
	}
	d.caches.ProjectInvalidate(projectID)
	return nil
}

// DeleteProject removes the project record and every slug that references
// it, primary and grace alike, found via the reverse index.
func (d *Directory) DeleteProject(ctx context.Context, projectID string) error {
	if _, err := d.store.Delete(ctx, d.opts.ProjectTable, dynamo.Key{"projectId": projectID}, dynamo.Cond{}); err != nil {
		return err
	}
	d.caches.ProjectInvalidate(projectID)

	items, err := d.store.QueryIndex(ctx, d.opts.SlugTable, d.opts.SlugByProjectIndex, "projectId", projectID)
	if err != nil {
		return err
	}
	var keys []dynamo.Key
	for _, it := range items {
		rec, err := decodeSlug(it)
		if err != nil {
			return err
		}
		if rec.ProjectID != projectID {
			continue
		}
		d.caches.SlugInvalidate(rec.Slug)
		keys = append(keys, dynamo.Key{"slug": rec.Slug})
	}
	if len(keys) == 0 {
		return nil
	}
	return d.store.BatchDelete(ctx, d.opts.SlugTable, keys)
}

// loadWithUpgrade applies the lazy schema upgrade on read. The write-back
// is conditioned on an unchanged version: losing that race is not an
// error, a later read retries the upgrade.
func (d *Directory) loadWithUpgrade(ctx context.Context, model domain.ProjectModel) (*domain.Project, error) {
	upgraded, ok, err := domain.UpgradeConfig(model.ConfigJSON)
	if err != nil {
		return nil, err
	}
	if ok {
		model.ConfigJSON = upgraded
		model.SchemaVersion = domain.CurrentSchemaVersion
		err := d.store.Put(ctx, d.opts.ProjectTable, encodeProject(model), dynamo.Cond{
			FieldEquals: map[string]string{"version": model.Version},
		})
		if err != nil {
			if !errors.Is(err, dynamo.ErrConditionFailed) {
				return nil, err
			}
			slog.Warn("dropping config schema upgrade, project modified concurrently",
				"project_id", model.ProjectID,
			)
		}
	}
	return domain.NewProject(model)
}

var subdomainRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
var domainRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)

func validateSubdomain(slug string) error {
	if len(slug) == 0 || len(slug) > 64 || !subdomainRegex.MatchString(slug) {
		return fmt.Errorf("subdomain %q must be lowercase alphanumeric with hyphens: %w", slug, ErrValidation)
	}
	return nil
}

func validateDomain(name string) error {
	if len(name) > 253 || !domainRegex.MatchString(name) {
		return fmt.Errorf("domain %q is not a valid hostname: %w", name, ErrValidation)
	}
	return nil
}
