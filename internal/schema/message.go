package schema

import "time"

// Role is who produced a Message, grounded on the teacher's
// pkg/schema/message.go MessageType constants (RoleHuman/RoleAssistant/
// RoleSystem), renamed "user" to match the spec's vocabulary.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// MessageKind classifies the payload shape of a Message.
type MessageKind string

const (
	MessageText       MessageKind = "text"
	MessageFile       MessageKind = "file"
	MessageToolCall   MessageKind = "tool_call"
	MessageToolResult MessageKind = "tool_result"
)

// SourceKind discriminates the tagged Source union. Replaces the teacher's
// unstructured metadata bags (Design Notes: "Unstructured metadata bags").
type SourceKind string

const (
	SourceRag SourceKind = "rag"
	SourceWeb SourceKind = "web"
)

// Source is a citation attached to an assistant Message. Exactly one of
// RagSource/WebSource is non-nil, selected by Kind; this keeps the wire
// representation a flat discriminated union instead of a map[string]any.
type Source struct {
	Kind SourceKind
	Rag  *RagSource `json:"rag,omitempty"`
	Web  *WebSource `json:"web,omitempty"`
}

// RagSource cites a retrieved chunk.
type RagSource struct {
	DocumentID       string  `json:"document_id"`
	DocumentFilename string  `json:"document_filename"`
	ChunkID          string  `json:"chunk_id"`
	PageNumber       *int    `json:"page_number,omitempty"`
	ContentPreview   string  `json:"content_preview"`
	Similarity       float32 `json:"similarity"`
}

// WebSource cites a web search result.
type WebSource struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Attachment is a file reference attached to a user Message.
type Attachment struct {
	DocumentID string
	Filename   string
	MIMEType   string
}

// Message is a node in the branchable message graph.
type Message struct {
	ID          string
	ChatID      string
	ParentID    *string
	Branch      string
	Role        Role
	Kind        MessageKind
	Content     string
	TokenCount  int
	ToolName    string         // set on MessageToolCall
	ToolParams  map[string]any // set on MessageToolCall
	ToolCallID  string         // set on MessageToolResult, back-references the call
	Attachments []Attachment
	Sources     []Source
	Metadata    map[string]string
	CreatedAt   time.Time
	Deleted     bool
	DeletedAt   *time.Time
}
