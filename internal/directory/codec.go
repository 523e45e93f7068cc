package directory

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/echoboard/echoboard/internal/domain"
	"github.com/echoboard/echoboard/internal/dynamo"
)

// slugRecord is the slug table item. The slug string is the partition key;
// a non-zero ExpiresAt marks the mapping as in its grace period.
type slugRecord struct {
	Slug      string `dynamodbav:"slug"`
	ProjectID string `dynamodbav:"projectId"`
	ExpiresAt int64  `dynamodbav:"expiresAtEpochSec,omitempty"`
}

func encodeSlug(rec slugRecord) (dynamo.Item, error) {
	it, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("encode slug %q: %w", rec.Slug, err)
	}
	return it, nil
}

func decodeSlug(it dynamo.Item) (slugRecord, error) {
	var rec slugRecord
	if err := attributevalue.UnmarshalMap(it, &rec); err != nil {
		return slugRecord{}, fmt.Errorf("decode slug item: %w", err)
	}
	if rec.Slug == "" || rec.ProjectID == "" {
		return slugRecord{}, fmt.Errorf("decode slug item: missing slug or projectId")
	}
	return rec, nil
}

// Project items are encoded by hand: webhookListeners must be a string set
// so the backend can ADD/DELETE members atomically, which the reflection
// marshaler would encode as a list.
func encodeProject(m domain.ProjectModel) dynamo.Item {
	it := dynamo.Item{
		"projectId":     dynamo.S(m.ProjectID),
		"accountId":     dynamo.S(m.AccountID),
		"version":       dynamo.S(m.Version),
		"schemaVersion": dynamo.N(strconv.FormatInt(m.SchemaVersion, 10)),
		"configJson":    dynamo.S(m.ConfigJSON),
	}
	if len(m.WebhookListeners) > 0 {
		it["webhookListeners"] = &types.AttributeValueMemberSS{Value: m.WebhookListeners}
	}
	return it
}

func decodeProject(it dynamo.Item) (domain.ProjectModel, error) {
	m := domain.ProjectModel{}
	var err error
	if m.ProjectID, err = itemString(it, "projectId"); err != nil {
		return domain.ProjectModel{}, err
	}
	if m.AccountID, err = itemString(it, "accountId"); err != nil {
		return domain.ProjectModel{}, err
	}
	if m.Version, err = itemString(it, "version"); err != nil {
		return domain.ProjectModel{}, err
	}
	if m.ConfigJSON, err = itemString(it, "configJson"); err != nil {
		return domain.ProjectModel{}, err
	}
	if m.SchemaVersion, err = itemNumber(it, "schemaVersion"); err != nil {
		return domain.ProjectModel{}, err
	}
	if set, ok := it["webhookListeners"].(*types.AttributeValueMemberSS); ok {
		m.WebhookListeners = set.Value
	}
	return m, nil
}

func itemString(it dynamo.Item, attr string) (string, error) {
	s, ok := it[attr].(*types.AttributeValueMemberS)
	if !ok || s.Value == "" {
		return "", fmt.Errorf("decode project item: missing or malformed %s", attr)
	}
	return s.Value, nil
}

func itemNumber(it dynamo.Item, attr string) (int64, error) {
	n, ok := it[attr].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("decode project item: missing or malformed %s", attr)
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode project item: malformed %s: %w", attr, err)
	}
	return v, nil
}
