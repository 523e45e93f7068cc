package directory

import (
	"context"
	"testing"
	"time"

	"github.com/echoboard/echoboard/internal/domain"
	"github.com/echoboard/echoboard/internal/dynamo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testProjectTable = "projects"
	testSlugTable    = "slugs"
	testSlugIndex    = "slugByProjectId"
)

func newTestDirectory(t *testing.T) (*Directory, *dynamo.Memory) {
	t.Helper()
	store := dynamo.NewMemory()
	caches := NewCaches(CacheOptions{SlugTTL: time.Hour, ProjectTTL: time.Hour})
	dir := New(store, caches, Options{
		ProjectTable:       testProjectTable,
		SlugTable:          testSlugTable,
		SlugByProjectIndex: testSlugIndex,
		SlugCacheRead:      true,
		ProjectCacheRead:   true,
	})
	return dir, store
}

func newConfig(slug, domainName string) domain.VersionedConfig {
	return domain.VersionedConfig{
		Config: domain.Config{
			SchemaVersion: domain.CurrentSchemaVersion,
			Name:          "Test",
			Slug:          slug,
			Domain:        domainName,
		},
		Version: domain.NewVersion(),
	}
}

func TestCreateAndResolve(t *testing.T) {
	ctx := context.Background()
	dir, _ := newTestDirectory(t)

	created, err := dir.CreateProject(ctx, "acct_1", "prj_1", newConfig("acme", "feedback.acme.com"))
	require.NoError(t, err)
	assert.Equal(t, "prj_1", created.ProjectID())
	assert.Equal(t, "acct_1", created.AccountID())

	got, err := dir.GetProject(ctx, "prj_1", true)
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Config().Slug)

	bySlug, err := dir.GetProjectBySlug(ctx, "acme", true)
	require.NoError(t, err)
	assert.Equal(t, "prj_1", bySlug.ProjectID())

	byDomain, err := dir.GetProjectBySlug(ctx, "feedback.acme.com", true)
	require.NoError(t, err)
	assert.Equal(t, "prj_1", byDomain.ProjectID())
}

func TestCreateSlugUniqueness(t *testing.T) {
	ctx := context.Background()
	dir, store := newTestDirectory(t)

	_, err := dir.CreateProject(ctx, "acct_1", "prj_1", newConfig("acme", ""))
	require.NoError(t, err)

	_, err = dir.CreateProject(ctx, "acct_2", "prj_2", newConfig("acme", ""))
	require.ErrorIs(t, err, ErrSlugTaken)

	// The losing create must leave no project record behind.
	it, err := store.Get(ctx, testProjectTable, dynamo.Key{"projectId": "prj_2"}, true)
	require.NoError(t, err)
	assert.Nil(t, it)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	dir, _ := newTestDirectory(t)

	for _, slug := range []string{"", "UPPER", "has space", "-leading", "trailing-", "dots.not.allowed"} {
		_, err := dir.CreateProject(ctx, "acct_1", "prj_1", newConfig(slug, ""))
		assert.ErrorIs(t, err, ErrValidation, "slug %q", slug)
	}

	_, err := dir.CreateProject(ctx, "acct_1", "prj_1", newConfig("acme", "not a hostname"))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGetProjectNotFound(t *testing.T) {
	ctx := context.Background()
	dir, _ := newTestDirectory(t)

	_, err := dir.GetProject(ctx, "prj_missing", true)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = dir.GetProjectBySlug(ctx, "missing", true)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetProjectNegativeCaching(t *testing.T) {
	ctx := context.Background()
	dir, store := newTestDirectory(t)

	_, err := dir.GetProject(ctx, "prj_1", true)
	require.ErrorIs(t, err, ErrNotFound)

	// Write the project behind the directory's back. The cached absence
	// keeps answering until bypassed or invalidated.
	conf := newConfig("acme", "")
	configJSON, err := conf.Config.MarshalJSONString()
	require.NoError(t, err)
	_, err = dir.CreateProject(ctx, "acct_1", "prj_other", newConfig("other", ""))
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, testProjectTable, dynamo.Item{
		"projectId":     dynamo.S("prj_1"),
		"accountId":     dynamo.S("acct_1"),
		"version":       dynamo.S(conf.Version),
		"schemaVersion": dynamo.N("2"),
		"configJson":    dynamo.S(configJSON),
	}, dynamo.Cond{}))

	_, err = dir.GetProject(ctx, "prj_1", true)
	assert.ErrorIs(t, err, ErrNotFound, "cached absence should still answer")

	got, err := dir.GetProject(ctx, "prj_1", false)
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Config().Slug)
}

func TestGetProjectsBatch(t *testing.T) {
	ctx := context.Background()
	dir, store := newTestDirectory(t)

	ids := []string{"prj_a", "prj_b", "prj_c"}
	for _, id := range ids {
		_, err := dir.CreateProject(ctx, "acct_1", id, newConfig("slug-"+id[4:], ""))
		require.NoError(t, err)
	}

	// Force the unprocessed-keys retry path.
	store.BatchPageSize = 1

	projects, err := dir.GetProjects(ctx, append(ids, "prj_missing"), false)
	require.NoError(t, err)
	assert.Len(t, projects, 3, "absent ids are skipped")
	assert.GreaterOrEqual(t, store.BatchRoundTrips(), 4)
}

func TestUpdateConfigVersionConflict(t *testing.T) {
	ctx := context.Background()
	dir, store := newTestDirectory(t)

	_, err := dir.CreateProject(ctx, "acct_1", "prj_1", newConfig("acme", ""))
	require.NoError(t, err)

	next := newConfig("fresh", "")
	err = dir.UpdateConfig(ctx, "prj_1", "not-the-stored-version", next)
	require.ErrorIs(t, err, ErrVersionConflict)

	// The claimed slug must have been rolled back.
	it, err := store.Get(ctx, testSlugTable, dynamo.Key{"slug": "fresh"}, true)
	require.NoError(t, err)
	assert.Nil(t, it)

	// And the project still carries the old slug.
	got, err := dir.GetProject(ctx, "prj_1", false)
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Config().Slug)
}

func TestUpdateConfigSlugMigration(t *testing.T) {
	ctx := context.Background()
	dir, store := newTestDirectory(t)
	dir.now = func() time.Time { return time.Unix(1_000_000, 0) }

	created, err := dir.CreateProject(ctx, "acct_1", "prj_1", newConfig("old-name", ""))
	require.NoError(t, err)

	next := newConfig("new-name", "")
	require.NoError(t, dir.UpdateConfig(ctx, "prj_1", created.Version(), next))

	// Both names resolve during the grace period.
	byNew, err := dir.GetProjectBySlug(ctx, "new-name", true)
	require.NoError(t, err)
	assert.Equal(t, "prj_1", byNew.ProjectID())
	byOld, err := dir.GetProjectBySlug(ctx, "old-name", true)
	require.NoError(t, err)
	assert.Equal(t, "prj_1", byOld.ProjectID())

	// The old record carries its expiry; the new one does not.
	it, err := store.Get(ctx, testSlugTable, dynamo.Key{"slug": "old-name"}, true)
	require.NoError(t, err)
	rec, err := decodeSlug(it)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1_000_000, 0).Add(24*time.Hour).Unix(), rec.ExpiresAt)

	it, err = store.Get(ctx, testSlugTable, dynamo.Key{"slug": "new-name"}, true)
	require.NoError(t, err)
	rec, err = decodeSlug(it)
	require.NoError(t, err)
	assert.Zero(t, rec.ExpiresAt)

	// A cached read observes the committed config.
	got, err := dir.GetProject(ctx, "prj_1", true)
	require.NoError(t, err)
	assert.Equal(t, "new-name", got.Config().Slug)
	assert.Equal(t, next.Version, got.Version())
}

func TestUpdateConfigReclaimOwnSlug(t *testing.T) {
	ctx := context.Background()
	dir, _ := newTestDirectory(t)

	created, err := dir.CreateProject(ctx, "acct_1", "prj_1", newConfig("first", ""))
	require.NoError(t, err)

	second := newConfig("second", "")
	require.NoError(t, dir.UpdateConfig(ctx, "prj_1", created.Version(), second))

	// Changing your mind inside the grace period reclaims the old slug.
	back := newConfig("first", "")
	require.NoError(t, dir.UpdateConfig(ctx, "prj_1", second.Version, back))

	got, err := dir.GetProjectBySlug(ctx, "first", false)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Config().Slug)
}

func TestUpdateConfigSlugTakenRollsBackEarlierClaims(t *testing.T) {
	ctx := context.Background()
	dir, store := newTestDirectory(t)

	created, err := dir.CreateProject(ctx, "acct_1", "prj_1", newConfig("mine", ""))
	require.NoError(t, err)
	_, err = dir.CreateProject(ctx, "acct_2", "prj_2", newConfig("theirs", ""))
	require.NoError(t, err)

	// Domain change claims first and succeeds; the slug claim then hits the
	// other project's record and must unwind the domain claim.
	next := newConfig("theirs", "feedback.mine.com")
	err = dir.UpdateConfig(ctx, "prj_1", created.Version(), next)
	require.ErrorIs(t, err, ErrSlugTaken)

	it, err := store.Get(ctx, testSlugTable, dynamo.Key{"slug": "feedback.mine.com"}, true)
	require.NoError(t, err)
	assert.Nil(t, it, "earlier claim in the failed batch must be rolled back")

	// The other project's slug is untouched.
	got, err := dir.GetProjectBySlug(ctx, "theirs", false)
	require.NoError(t, err)
	assert.Equal(t, "prj_2", got.ProjectID())
}

func TestUpdateConfigMissingProject(t *testing.T) {
	ctx := context.Background()
	dir, _ := newTestDirectory(t)

	err := dir.UpdateConfig(ctx, "prj_missing", "", newConfig("acme", ""))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateConfigLastWriteWins(t *testing.T) {
	ctx := context.Background()
	dir, _ := newTestDirectory(t)

	_, err := dir.CreateProject(ctx, "acct_1", "prj_1", newConfig("acme", ""))
	require.NoError(t, err)

	// Empty previousVersion skips the optimistic concurrency check.
	next := newConfig("acme", "")
	next.Config.Name = "Renamed"
	require.NoError(t, dir.UpdateConfig(ctx, "prj_1", "", next))

	got, err := dir.GetProject(ctx, "prj_1", false)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Config().Name)
}

func TestWebhookListeners(t *testing.T) {
	ctx := context.Background()
	dir, _ := newTestDirectory(t)

	_, err := dir.CreateProject(ctx, "acct_1", "prj_1", newConfig("acme", ""))
	require.NoError(t, err)

	listener := domain.WebhookListener{ResourceType: domain.ResourcePost, EventType: "created", URL: "https://example.com/hook"}
	require.NoError(t, dir.AddWebhookListener(ctx, "prj_1", listener))

	got, err := dir.GetProject(ctx, "prj_1", true)
	require.NoError(t, err)
	require.Len(t, got.WebhookListeners(domain.ResourcePost, "created"), 1)

	// Adding the same listener twice is a no-op.
	require.NoError(t, dir.AddWebhookListener(ctx, "prj_1", listener))
	got, err = dir.GetProject(ctx, "prj_1", true)
	require.NoError(t, err)
	require.Len(t, got.WebhookListeners(domain.ResourcePost, "created"), 1)

	require.NoError(t, dir.RemoveWebhookListener(ctx, "prj_1", listener))
	got, err = dir.GetProject(ctx, "prj_1", true)
	require.NoError(t, err)
	assert.Empty(t, got.WebhookListeners(domain.ResourcePost, "created"))

	// A listener change against a missing project is benign.
	assert.NoError(t, dir.AddWebhookListener(ctx, "prj_missing", listener))
}

func TestDeleteProjectCascades(t *testing.T) {
	ctx := context.Background()
	dir, store := newTestDirectory(t)

	created, err := dir.CreateProject(ctx, "acct_1", "prj_1", newConfig("old-name", "feedback.acme.com"))
	require.NoError(t, err)

	// Leave a grace record behind via a rename, then delete.
	next := newConfig("new-name", "feedback.acme.com")
	require.NoError(t, dir.UpdateConfig(ctx, "prj_1", created.Version(), next))
	require.NoError(t, dir.DeleteProject(ctx, "prj_1"))

	_, err = dir.GetProject(ctx, "prj_1", false)
	require.ErrorIs(t, err, ErrNotFound)
	for _, slug := range []string{"old-name", "new-name", "feedback.acme.com"} {
		it, err := store.Get(ctx, testSlugTable, dynamo.Key{"slug": slug}, true)
		require.NoError(t, err)
		assert.Nil(t, it, "slug %q must be removed", slug)
	}
}

func TestLazySchemaUpgradeOnRead(t *testing.T) {
	ctx := context.Background()
	dir, store := newTestDirectory(t)

	// A v1 record: no schemaVersion in the blob, slug stored as "subdomain".
	require.NoError(t, store.Put(ctx, testProjectTable, dynamo.Item{
		"projectId":     dynamo.S("prj_1"),
		"accountId":     dynamo.S("acct_1"),
		"version":       dynamo.S("v-old"),
		"schemaVersion": dynamo.N("1"),
		"configJson":    dynamo.S(`{"subdomain":"acme","name":"Acme"}`),
	}, dynamo.Cond{}))

	got, err := dir.GetProject(ctx, "prj_1", false)
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Config().Slug)
	assert.Equal(t, int64(domain.CurrentSchemaVersion), got.Config().SchemaVersion)

	// The upgrade was written back.
	it, err := store.Get(ctx, testProjectTable, dynamo.Key{"projectId": "prj_1"}, true)
	require.NoError(t, err)
	model, err := decodeProject(it)
	require.NoError(t, err)
	assert.Equal(t, int64(domain.CurrentSchemaVersion), model.SchemaVersion)
	assert.Contains(t, model.ConfigJSON, `"slug":"acme"`)
}

// racingStore fails the upgrade write-back as if a concurrent writer had
// bumped the version between the read and the conditional put.
type racingStore struct {
	dynamo.Store
	failPutsOn string
}

func (s *racingStore) Put(ctx context.Context, table string, item dynamo.Item, cond dynamo.Cond) error {
	if table == s.failPutsOn && len(cond.FieldEquals) > 0 {
		return dynamo.ErrConditionFailed
	}
	return s.Store.Put(ctx, table, item, cond)
}

func TestLazySchemaUpgradeDroppedOnRace(t *testing.T) {
	ctx := context.Background()
	mem := dynamo.NewMemory()
	caches := NewCaches(CacheOptions{SlugTTL: time.Hour, ProjectTTL: time.Hour})
	dir := New(&racingStore{Store: mem, failPutsOn: testProjectTable}, caches, Options{
		ProjectTable:       testProjectTable,
		SlugTable:          testSlugTable,
		SlugByProjectIndex: testSlugIndex,
	})

	require.NoError(t, mem.Put(ctx, testProjectTable, dynamo.Item{
		"projectId":     dynamo.S("prj_1"),
		"accountId":     dynamo.S("acct_1"),
		"version":       dynamo.S("v-old"),
		"schemaVersion": dynamo.N("1"),
		"configJson":    dynamo.S(`{"subdomain":"acme"}`),
	}, dynamo.Cond{}))

	// The lost write-back is not an error and the caller still gets the
	// upgraded view.
	got, err := dir.GetProject(ctx, "prj_1", false)
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Config().Slug)

	it, err := mem.Get(ctx, testProjectTable, dynamo.Key{"projectId": "prj_1"}, true)
	require.NoError(t, err)
	model, err := decodeProject(it)
	require.NoError(t, err)
	assert.Equal(t, int64(1), model.SchemaVersion, "stored record stays at the old schema")
}
