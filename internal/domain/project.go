package domain

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ProjectModel is the raw project record as persisted in the backend.
type ProjectModel struct {
	AccountID        string
	ProjectID        string
	Version          string
	SchemaVersion    int64
	ConfigJSON       string
	WebhookListeners []string
}

// Project is an immutable loaded project. All lookup maps are derived once
// from the stored config at construction and never mutated afterwards.
type Project struct {
	model       ProjectModel
	config      Config
	categories  map[string]*Category
	statuses    map[string]*Status
	exprWeights map[string]map[string]float64
	listeners   map[string][]WebhookListener
}

const defaultExpressionWeight = 1.0

// NewProject builds a Project from its stored record. A config blob that
// fails to parse is an integrity error, not a user error.
func NewProject(model ProjectModel) (*Project, error) {
	var conf Config
	if err := json.Unmarshal([]byte(model.ConfigJSON), &conf); err != nil {
		return nil, fmt.Errorf("decode config for project %s: %w", model.ProjectID, err)
	}

	p := &Project{
		model:       model,
		config:      conf,
		categories:  make(map[string]*Category, len(conf.Categories)),
		statuses:    make(map[string]*Status),
		exprWeights: make(map[string]map[string]float64),
		listeners:   make(map[string][]WebhookListener),
	}

	for i := range conf.Categories {
		cat := &conf.Categories[i]
		p.categories[cat.CategoryID] = cat

		for j := range cat.Workflow.Statuses {
			status := &cat.Workflow.Statuses[j]
			p.statuses[statusKey(cat.CategoryID, status.StatusID)] = status
		}

		if cat.Support.Express != nil && len(cat.Support.Express.LimitEmojiSet) > 0 {
			weights := make(map[string]float64, len(cat.Support.Express.LimitEmojiSet))
			for _, expr := range cat.Support.Express.LimitEmojiSet {
				weights[expr.Display] = expr.Weight
			}
			p.exprWeights[cat.CategoryID] = weights
		}
	}

	for _, packed := range model.WebhookListeners {
		listener, ok := UnpackWebhookListener(packed)
		if !ok {
			continue
		}
		key := listenerKey(listener.ResourceType, listener.EventType)
		p.listeners[key] = append(p.listeners[key], listener)
	}

	return p, nil
}

// Model returns the underlying stored record.
func (p *Project) Model() ProjectModel { return p.model }

func (p *Project) AccountID() string { return p.model.AccountID }
func (p *Project) ProjectID() string { return p.model.ProjectID }
func (p *Project) Version() string   { return p.model.Version }

// Config returns the parsed configuration.
func (p *Project) Config() Config { return p.config }

// VersionedConfig returns the configuration paired with its version token.
func (p *Project) VersionedConfig() VersionedConfig {
	return VersionedConfig{Config: p.config, Version: p.model.Version}
}

// Category looks up a category by id.
func (p *Project) Category(categoryID string) (*Category, bool) {
	cat, ok := p.categories[categoryID]
	return cat, ok
}

// StatusOf looks up a workflow status within a category.
func (p *Project) StatusOf(categoryID, statusID string) (*Status, bool) {
	status, ok := p.statuses[statusKey(categoryID, statusID)]
	return status, ok
}

// ExpressionWeight returns the vote weight of an expression in a category,
// falling back to 1.0 when the category has no limited emoji set.
func (p *Project) ExpressionWeight(categoryID, expression string) float64 {
	weights, ok := p.exprWeights[categoryID]
	if !ok {
		return defaultExpressionWeight
	}
	weight, ok := weights[expression]
	if !ok {
		return defaultExpressionWeight
	}
	return weight
}

// VotingAllowed reports whether a vote is permitted in the category,
// honoring the per-status disable flag. statusID may be empty.
func (p *Project) VotingAllowed(downvote bool, categoryID, statusID string) (bool, error) {
	cat, ok := p.Category(categoryID)
	if !ok {
		return false, fmt.Errorf("unknown category %q", categoryID)
	}
	if cat.Support.Vote == nil {
		return false, nil
	}
	if downvote && !cat.Support.Vote.EnableDownvotes {
		return false, nil
	}
	if statusID != "" {
		status, ok := p.StatusOf(categoryID, statusID)
		if !ok {
			return false, fmt.Errorf("unknown status %q in category %q", statusID, categoryID)
		}
		if status.DisableVoting {
			return false, nil
		}
	}
	return true, nil
}

// ExpressingAllowed reports whether emoji reactions are permitted.
func (p *Project) ExpressingAllowed(categoryID, statusID string) (bool, error) {
	cat, ok := p.Category(categoryID)
	if !ok {
		return false, fmt.Errorf("unknown category %q", categoryID)
	}
	if cat.Support.Express == nil {
		return false, nil
	}
	if statusID != "" {
		status, ok := p.StatusOf(categoryID, statusID)
		if !ok {
			return false, fmt.Errorf("unknown status %q in category %q", statusID, categoryID)
		}
		if status.DisableExpressions {
			return false, nil
		}
	}
	return true, nil
}

// FundingAllowed reports whether crowd-funding is permitted.
func (p *Project) FundingAllowed(categoryID, statusID string) (bool, error) {
	cat, ok := p.Category(categoryID)
	if !ok {
		return false, fmt.Errorf("unknown category %q", categoryID)
	}
	if !cat.Support.Fund {
		return false, nil
	}
	if statusID != "" {
		status, ok := p.StatusOf(categoryID, statusID)
		if !ok {
			return false, fmt.Errorf("unknown status %q in category %q", statusID, categoryID)
		}
		if status.DisableFunding {
			return false, nil
		}
	}
	return true, nil
}

// ValidateUserTags checks that every tag group's user-settable and min/max
// constraints allow the given tag assignment.
func (p *Project) ValidateUserTags(tagIDs []string, categoryID string) error {
	if len(tagIDs) == 0 {
		return nil
	}
	cat, ok := p.Category(categoryID)
	if !ok {
		return fmt.Errorf("unknown category %q", categoryID)
	}
	for _, group := range cat.Tagging.TagGroups {
		inGroup := 0
		for _, tagID := range tagIDs {
			for _, groupTagID := range group.TagIDs {
				if tagID == groupTagID {
					inGroup++
					break
				}
			}
		}
		if inGroup > 0 && !group.UserSettable {
			return fmt.Errorf("tags for %s are not user settable", group.Name)
		}
		if !group.UserSettable {
			continue
		}
		if group.MaxRequired != nil && inGroup > *group.MaxRequired {
			return fmt.Errorf("maximum tags for %s is %d", group.Name, *group.MaxRequired)
		}
		if group.MinRequired != nil && inGroup < *group.MinRequired {
			return fmt.Errorf("minimum tags for %s is %d", group.Name, *group.MinRequired)
		}
	}
	return nil
}

// WebhookListeners returns the listeners registered for a resource/event pair.
func (p *Project) WebhookListeners(resource ResourceType, event string) []WebhookListener {
	return p.listeners[listenerKey(resource, event)]
}

// Hostname derives the hostname the project is served from: the custom
// domain when set, otherwise subdomain.baseDomain.
func (p *Project) Hostname(baseDomain string) string {
	if p.config.Domain != "" {
		return p.config.Domain
	}
	return p.config.Slug + "." + baseDomain
}

func statusKey(categoryID, statusID string) string {
	return categoryID + ":" + statusID
}

// GenerateProjectID creates a unique project ID with "prj_" prefix.
func GenerateProjectID() string {
	b := make([]byte, 14)
	rand.Read(b)
	return "prj_" + hex.EncodeToString(b)[:27]
}

// NewVersion mints a fresh opaque config version token.
func NewVersion() string {
	return uuid.NewString()
}
