package dynamo

// DynamoDB attribute names used in keys and update expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldUserID           = "user_id"
	fieldSessionID        = "session_id"
	fieldIdentifier       = "identifier"
	fieldEmail            = "email"
	fieldCode             = "code"
	fieldCreatedAt        = "created_at"
	fieldUpdatedAt        = "updated_at"
	fieldEnable           = "enable"
	fieldRefreshToken     = "refresh_token"
	fieldRefreshExpiresAt = "refresh_expires_at"
	fieldTTL              = "ttl"
)
