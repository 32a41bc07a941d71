package config

const (
	// MaxConversationTitleLength is the maximum length for conversation
	// titles. Limited to 255 to fit in PostgreSQL VARCHAR(255) and provide
	// reasonable UX (titles should be short and descriptive).
	MaxConversationTitleLength = 255

	// MaxMessageContentLength is the maximum length for a single chat
	// message. Generous because assistant completions can be long.
	MaxMessageContentLength = 65536

	// MaxAuditDetailLength is the maximum length for an audit record's
	// free-form detail field.
	MaxAuditDetailLength = 1024
)
