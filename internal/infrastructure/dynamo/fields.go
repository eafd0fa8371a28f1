package dynamo

// Attribute names written by the storage layer itself, next to the record's own attributes.
const (
	attrETag       = "etag"
	attrHolder     = "holder"
	attrLeaseUntil = "lease_until_ms"
	attrExpiresAt  = "expires_at" // TTL (Unix seconds)
	attrAccountID  = "account_id"
)

const emailIndex = "email-index"
