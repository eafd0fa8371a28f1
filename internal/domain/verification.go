package domain

// VerificationCodePartition is the fixed partition holding registration codes.
const VerificationCodePartition = "RegisterVerificationCode"

// Stored attribute names referenced by scans.
const (
	AttrPartitionKey = "partition_key"
	AttrRowKey       = "row_key"
	AttrEmail        = "email"
)

// VerificationCode is a single-use registration code issued for an email address.
// PK: partition_key (always VerificationCodePartition), SK: row_key (opaque token).
type VerificationCode struct {
	Partition     string `json:"-" dynamodbav:"partition_key"`
	Key           string `json:"key" dynamodbav:"row_key"`
	Email         string `json:"email" dynamodbav:"email"`
	Code          string `json:"-" dynamodbav:"code"`
	ResendCount   int    `json:"resend_count" dynamodbav:"resend_count"`
	Referer       string `json:"referer,omitempty" dynamodbav:"referer"`
	ReturnURL     string `json:"return_url,omitempty" dynamodbav:"return_url"`
	ClientID      string `json:"client_id,omitempty" dynamodbav:"client_id"`
	TrafficSource string `json:"traffic_source,omitempty" dynamodbav:"traffic_source"`
}

func (v VerificationCode) PartitionKey() string { return v.Partition }
func (v VerificationCode) RowKey() string       { return v.Key }

// AddCodeRequest carries the identity being verified plus opaque pass-through context.
type AddCodeRequest struct {
	Email         string `json:"email" validate:"required,email,max=254"`
	Referer       string `json:"referer" validate:"max=2048"`
	ReturnURL     string `json:"return_url" validate:"omitempty,url,max=2048"`
	ClientID      string `json:"client_id" validate:"max=256"`
	TrafficSource string `json:"traffic_source" validate:"max=256"`
}

// VerifyResult reports the outcome of checking a supplied code.
type VerifyResult struct {
	Found                  bool
	Matched                bool
	EmailAlreadyRegistered bool
	Code                   *VerificationCode
}

// ResendResult reports whether a resend produced a new code.
// Issued is false when the resend limit was already reached; Code then holds the unchanged record.
type ResendResult struct {
	Issued bool
	Code   *VerificationCode
}
