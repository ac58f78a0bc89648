package repository

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

// Unique constraint names from migrations/.
const (
	constraintOrganizationSlug  = "organizations_slug_key"
	constraintOrganizationOwner = "organizations_owner_user_id_key"
	constraintIdentitySubject   = "user_identities_provider_subject_key"
	constraintAPIKeyValue       = "api_keys_key_key"
	constraintAPIKeyProvisioned = "api_keys_one_provisioned_idx"
	constraintAgentOrgIP        = "agents_organization_id_ip_address_key"
	constraintAgentOrgHost      = "agents_organization_id_host_id_key"
	constraintSessionTokenHash  = "sessions_token_hash_key"
)

// uniqueViolation returns the violated constraint name when err is a
// Postgres unique violation.
func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return "", false
	}
	if string(pqErr.Code) != pgerrcode.UniqueViolation {
		return "", false
	}
	return pqErr.Constraint, true
}
