package config

const (
	// MaxSessionTitleLength is the maximum length for session titles.
	// Limited to 255 to fit in PostgreSQL VARCHAR(255) and keep titles
	// short and descriptive.
	MaxSessionTitleLength = 255

	// MaxPromptLength is the maximum length of a single user request.
	// Requests beyond this are almost certainly pasted code rather than a
	// change description.
	MaxPromptLength = 20000

	// MaxCodeSize is the maximum size of a generated code buffer accepted
	// from the generator, in bytes.
	MaxCodeSize = 512 * 1024

	// MaxAttachments is the maximum number of images per user request.
	MaxAttachments = 4

	// MaxCorrectionAttempts is the automatic retry budget for a failing
	// turn: the initial attempt plus up to two corrective follow-ups.
	MaxCorrectionAttempts = 3
)
