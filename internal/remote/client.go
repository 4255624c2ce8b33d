package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/fleetworks/fieldsync/internal/errors"
	"github.com/fleetworks/fieldsync/internal/models"
)

// Client is the HTTP implementation of the remote API.
type Client struct {
	baseURL string
	tenant  string
	http    *http.Client
}

// NewClient creates a Client for the given base URL and tenant.
func NewClient(baseURL, tenant string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tenant:  tenant,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// SubmitRun creates a checklist run remotely.
// The natural key travels as the Idempotency-Key header; a duplicate key is
// answered with 200/409 by the remote store and both count as success here.
func (c *Client) SubmitRun(ctx context.Context, run *models.ChecklistRun) error {
	body, err := json.Marshal(run)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to encode run", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/runs", bytes.NewReader(body))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", run.NaturalKey())
	c.setTenant(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNetworkTransient, "run submission failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict:
		// Idempotency-key dedup hit: the record already exists remotely.
		return nil
	case resp.StatusCode >= 500:
		return apperrors.Wrap(apperrors.ErrNetworkTransient, "run submission failed",
			fmt.Errorf("remote returned %d", resp.StatusCode))
	default:
		return apperrors.Wrap(apperrors.ErrSyncFailed, "run submission rejected",
			fmt.Errorf("remote returned %d", resp.StatusCode))
	}
}

// ListRuns reads the remote list of checklist runs.
func (c *Client) ListRuns(ctx context.Context) ([]*models.ChecklistRun, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/runs", nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to build request", err)
	}
	c.setTenant(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrNetworkTransient, "run listing failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		code := apperrors.ErrSyncFailed
		if resp.StatusCode >= 500 {
			code = apperrors.ErrNetworkTransient
		}
		return nil, apperrors.Wrap(code, "run listing failed",
			fmt.Errorf("remote returned %d", resp.StatusCode))
	}

	var payload struct {
		Runs []*models.ChecklistRun `json:"runs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrSyncFailed, "failed to decode run list", err)
	}
	for _, r := range payload.Runs {
		r.Status = models.RunStatusSynced
	}
	return payload.Runs, nil
}

// UpdateEvent applies a status/date/time patch to a remote event.
func (c *Client) UpdateEvent(ctx context.Context, eventID models.UUID, patch EventPatch) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to encode patch", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch,
		c.baseURL+"/api/events/"+eventID.String(), bytes.NewReader(body))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setTenant(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNetworkTransient, "event update failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return apperrors.Wrap(apperrors.ErrNetworkTransient, "event update failed",
			fmt.Errorf("remote returned %d", resp.StatusCode))
	default:
		return apperrors.Wrap(apperrors.ErrSyncFailed, "event update rejected",
			fmt.Errorf("remote returned %d", resp.StatusCode))
	}
}

func (c *Client) setTenant(req *http.Request) {
	if c.tenant != "" {
		req.Header.Set("X-Tenant", c.tenant)
	}
}

var _ API = (*Client)(nil)
