package domain

import "encoding/json"

// VersionedConfig pairs a project configuration with its opaque version
// token. Versions are compared by equality only, never ordered.
type VersionedConfig struct {
	Config  Config `json:"config"`
	Version string `json:"version"`
}

// Config is the project configuration blob stored as configJson.
type Config struct {
	SchemaVersion int64      `json:"schemaVersion"`
	Name          string     `json:"name,omitempty"`
	Slug          string     `json:"slug"`
	Domain        string     `json:"domain,omitempty"`
	Categories    []Category `json:"categories,omitempty"`
}

// Category groups posts and defines what interactions they support.
type Category struct {
	CategoryID string   `json:"categoryId"`
	Name       string   `json:"name,omitempty"`
	Support    Support  `json:"support"`
	Workflow   Workflow `json:"workflow"`
	Tagging    Tagging  `json:"tagging"`
}

// Support controls which interactions are enabled for a category.
// A nil Vote/Express disables that interaction entirely.
type Support struct {
	Vote    *Voting     `json:"vote,omitempty"`
	Express *Expressing `json:"express,omitempty"`
	Fund    bool        `json:"fund,omitempty"`
}

// Voting configures up/down voting for a category.
type Voting struct {
	EnableDownvotes bool `json:"enableDownvotes,omitempty"`
}

// Expressing configures emoji reactions for a category. When LimitEmojiSet
// is set, only the listed expressions are allowed and carry custom weights.
type Expressing struct {
	LimitEmojiSet []Expression `json:"limitEmojiSet,omitempty"`
}

// Expression is a single allowed reaction with its vote weight.
type Expression struct {
	Display string  `json:"display"`
	Weight  float64 `json:"weight"`
}

// Workflow holds the status graph for a category.
type Workflow struct {
	Statuses []Status `json:"statuses,omitempty"`
}

// Status is a workflow state a post can be in. Disable flags suppress
// interactions while a post sits in this status.
type Status struct {
	StatusID           string `json:"statusId"`
	Name               string `json:"name,omitempty"`
	DisableVoting      bool   `json:"disableVoting,omitempty"`
	DisableExpressions bool   `json:"disableExpressions,omitempty"`
	DisableFunding     bool   `json:"disableFunding,omitempty"`
}

// Tagging holds the tags and tag groups for a category.
type Tagging struct {
	Tags      []Tag      `json:"tags,omitempty"`
	TagGroups []TagGroup `json:"tagGroups,omitempty"`
}

// Tag is a single assignable label.
type Tag struct {
	TagID string `json:"tagId"`
	Name  string `json:"name,omitempty"`
}

// TagGroup constrains how many tags from a set a user may assign.
type TagGroup struct {
	Name         string   `json:"name"`
	TagIDs       []string `json:"tagIds,omitempty"`
	UserSettable bool     `json:"userSettable,omitempty"`
	MinRequired  *int     `json:"minRequired,omitempty"`
	MaxRequired  *int     `json:"maxRequired,omitempty"`
}

// MarshalJSONString serializes the config for storage.
func (c Config) MarshalJSONString() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
