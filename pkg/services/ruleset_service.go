package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/database"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

// RulesetService manages per-tenant review rulesets
type RulesetService struct {
	client *database.Client
}

// NewRulesetService creates a new RulesetService
func NewRulesetService(client *database.Client) *RulesetService {
	return &RulesetService{client: client}
}

// GetRuleset retrieves a tenant's ruleset
func (s *RulesetService) GetRuleset(ctx context.Context, tenantID string) (*models.TenantRuleset, error) {
	if tenantID == "" {
		return nil, NewValidationError("tenant_id", "required")
	}

	var rs models.TenantRuleset
	err := s.client.GetContext(ctx, &rs,
		`SELECT tenant_id, content_markdown, updated_at FROM tenant_rulesets WHERE tenant_id = $1`,
		tenantID)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("ruleset for tenant '%s': %w", tenantID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get ruleset: %w", err)
	}

	return &rs, nil
}

// PutRuleset replaces a tenant's ruleset. An empty document is allowed
// and turns every ruleset stage into a no-op.
func (s *RulesetService) PutRuleset(ctx context.Context, tenantID, contentMarkdown string) (*models.TenantRuleset, error) {
	if tenantID == "" {
		return nil, NewValidationError("tenant_id", "required")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var rs models.TenantRuleset
	err := s.client.GetContext(ctx, &rs,
		`INSERT INTO tenant_rulesets (tenant_id, content_markdown)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id) DO UPDATE SET
			content_markdown = EXCLUDED.content_markdown,
			updated_at = now()
		RETURNING tenant_id, content_markdown, updated_at`,
		tenantID, contentMarkdown)
	if err != nil {
		return nil, fmt.Errorf("failed to store ruleset: %w", err)
	}

	return &rs, nil
}
