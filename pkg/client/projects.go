package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// Project is a project as returned by the API. Config is the raw project
// configuration blob.
type Project struct {
	ProjectID string          `json:"projectId"`
	AccountID string          `json:"accountId"`
	Version   string          `json:"version"`
	Config    json.RawMessage `json:"config"`
}

// CreateProjectRequest is the request to create a project.
type CreateProjectRequest struct {
	Config json.RawMessage `json:"config"`
}

// UpdateProjectRequest is the request to update a project config.
type UpdateProjectRequest struct {
	Config          json.RawMessage `json:"config"`
	PreviousVersion string          `json:"previousVersion,omitempty"`
}

// UpdateProjectResponse is the response from updating a project.
type UpdateProjectResponse struct {
	ProjectID string          `json:"projectId"`
	Version   string          `json:"version"`
	Config    json.RawMessage `json:"config"`
}

// WebhookListenerRequest identifies a webhook listener.
type WebhookListenerRequest struct {
	ResourceType string `json:"resourceType"`
	EventType    string `json:"eventType"`
	URL          string `json:"url"`
}

// ProjectCreate creates a new project from a raw config blob. The config
// must carry at least a "slug" field.
func (c *Client) ProjectCreate(ctx context.Context, config json.RawMessage) (*Project, error) {
	var project Project
	err := c.do(ctx, http.MethodPost, "/api/v1/projects", CreateProjectRequest{Config: config}, &project)
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// ProjectGet retrieves a project by ID.
func (c *Client) ProjectGet(ctx context.Context, projectID string) (*Project, error) {
	var project Project
	err := c.do(ctx, http.MethodGet, "/api/v1/projects/"+url.PathEscape(projectID), nil, &project)
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// ProjectGetBySlug resolves a slug to its project.
func (c *Client) ProjectGetBySlug(ctx context.Context, slug string) (*Project, error) {
	var project Project
	err := c.do(ctx, http.MethodGet, "/api/v1/slugs/"+url.PathEscape(slug), nil, &project)
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// ProjectUpdate replaces the project configuration. previousVersion may be
// empty to skip the optimistic concurrency check.
func (c *Client) ProjectUpdate(ctx context.Context, projectID, previousVersion string, config json.RawMessage) (*UpdateProjectResponse, error) {
	var resp UpdateProjectResponse
	err := c.do(ctx, http.MethodPut, "/api/v1/projects/"+url.PathEscape(projectID), UpdateProjectRequest{
		Config:          config,
		PreviousVersion: previousVersion,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProjectDelete deletes a project and its slugs.
func (c *Client) ProjectDelete(ctx context.Context, projectID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/projects/"+url.PathEscape(projectID), nil, nil)
}

// WebhookListenerAdd registers a webhook listener on a project.
func (c *Client) WebhookListenerAdd(ctx context.Context, projectID string, listener WebhookListenerRequest) error {
	return c.do(ctx, http.MethodPost, "/api/v1/projects/"+url.PathEscape(projectID)+"/webhooks", listener, nil)
}

// WebhookListenerRemove removes a webhook listener from a project.
func (c *Client) WebhookListenerRemove(ctx context.Context, projectID string, listener WebhookListenerRequest) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/projects/"+url.PathEscape(projectID)+"/webhooks", listener, nil)
}
