package dashboard

import "encoding/json"

// LoginRequest authenticates a dashboard operator with email and password.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CustomerUpdateRequest patches tenant-level settings. Nil fields are left
// untouched by the server.
type CustomerUpdateRequest struct {
	RequireDiscordRedeem *bool `json:"require_discord_redeem,omitempty"`
	RequireHWID          *bool `json:"require_hwid,omitempty"`
	Paused               *bool `json:"paused,omitempty"`
}

// TeamMemberCreateRequest adds an operator account.
type TeamMemberCreateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// TeamMemberUpdateRequest patches an operator account.
type TeamMemberUpdateRequest struct {
	Role     string `json:"role,omitempty"`
	Password string `json:"password,omitempty"`
}

// KeyCreateRequest mints a single license key.
type KeyCreateRequest struct {
	Label         string          `json:"label,omitempty"`
	DurationHours *int64          `json:"duration_hours,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

// KeyBatchCreateRequest mints a batch of license keys.
type KeyBatchCreateRequest struct {
	Count         int64           `json:"count"`
	LabelPrefix   string          `json:"label_prefix,omitempty"`
	DurationHours *int64          `json:"duration_hours,omitempty"`
	KeyOnly       *bool           `json:"key_only,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

// KeyUpdateRequest patches an existing key.
type KeyUpdateRequest struct {
	Label         string          `json:"label,omitempty"`
	DurationHours *int64          `json:"duration_hours,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

// KeyRevokeRequest carries the optional reason attached to a key deletion.
type KeyRevokeRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RevokeSessionRequest terminates one key session with optional follow-up
// actions.
type RevokeSessionRequest struct {
	Reason               string `json:"reason,omitempty"`
	RevokeKey            *bool  `json:"revoke_key,omitempty"`
	ResetHWID            *bool  `json:"reset_hwid,omitempty"`
	BlacklistDiscord     *bool  `json:"blacklist_discord,omitempty"`
	TerminateAllForKey   *bool  `json:"terminate_all_for_key,omitempty"`
	TerminateAllForToken *bool  `json:"terminate_all_for_token,omitempty"`
}

// RevokeAllSessionsRequest terminates every session matching the filter.
type RevokeAllSessionsRequest struct {
	Reason  string `json:"reason,omitempty"`
	KeyID   string `json:"key_id,omitempty"`
	TokenID string `json:"token_id,omitempty"`
}

// CheckpointStepInput is one advertisement step inside a checkpoint flow.
type CheckpointStepInput struct {
	AdURL string `json:"ad_url"`
}

// CheckpointCreateRequest defines a new checkpoint flow.
type CheckpointCreateRequest struct {
	Name               string                `json:"name"`
	DurationHours      int64                 `json:"duration_hours"`
	IsActive           bool                  `json:"is_active"`
	ReferrerDomainOnly *bool                 `json:"referrer_domain_only,omitempty"`
	Steps              []CheckpointStepInput `json:"steps"`
}

// CheckpointUpdateRequest patches a checkpoint flow.
type CheckpointUpdateRequest struct {
	Name               string                `json:"name,omitempty"`
	DurationHours      *int64                `json:"duration_hours,omitempty"`
	IsActive           *bool                 `json:"is_active,omitempty"`
	ReferrerDomainOnly *bool                 `json:"referrer_domain_only,omitempty"`
	Steps              []CheckpointStepInput `json:"steps,omitempty"`
}

// BlacklistCreateRequest blocks a value (hwid, discord id, ip) from
// verification.
type BlacklistCreateRequest struct {
	Type   string `json:"type"`
	Value  string `json:"value"`
	Reason string `json:"reason,omitempty"`
}

// APITokenCreateRequest mints an API token with its replay and auth policy.
type APITokenCreateRequest struct {
	Scopes           []string `json:"scopes"`
	ReplayProtection string   `json:"replay_protection"`
	AuthMode         string   `json:"auth_mode"`
	ExpiresAt        string   `json:"expires_at,omitempty"`
}

// APITokenUpdateRequest patches an API token.
type APITokenUpdateRequest struct {
	Scopes           []string `json:"scopes,omitempty"`
	ReplayProtection string   `json:"replay_protection,omitempty"`
	AuthMode         string   `json:"auth_mode,omitempty"`
	ExpiresAt        string   `json:"expires_at,omitempty"`
}
