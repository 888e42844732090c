package models

import "time"

// SourceStatus is the lifecycle state of an ingested source. Transitions
// are validated centrally through CanTransition; completed and failed are
// terminal.
type SourceStatus string

const (
	StatusPending    SourceStatus = "pending"
	StatusAcquiring  SourceStatus = "acquiring"
	StatusProcessing SourceStatus = "processing"
	StatusCompleted  SourceStatus = "completed"
	StatusFailed     SourceStatus = "failed"
)

var transitions = map[SourceStatus][]SourceStatus{
	StatusPending:    {StatusAcquiring, StatusProcessing, StatusFailed},
	StatusAcquiring:  {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// CanTransition reports whether moving from s to next is a legal step of
// the state machine.
func (s SourceStatus) CanTransition(next SourceStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further automatic transition occurs.
func (s SourceStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SourceKind is the declared or detected media kind of a source.
type SourceKind string

const (
	KindPDF     SourceKind = "pdf"
	KindDocx    SourceKind = "docx"
	KindEPUB    SourceKind = "epub"
	KindText    SourceKind = "text"
	KindAudio   SourceKind = "audio"
	KindVideo   SourceKind = "video"
	KindImage   SourceKind = "image"
	KindWeb     SourceKind = "web"
	KindUnknown SourceKind = "unknown"
)

// Source is the unit of ingestion. ID is assigned at creation and never
// changes; re-ingesting the same material creates a new Source.
type Source struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Origin        string       `json:"origin"`
	Remote        bool         `json:"remote"`
	Kind          SourceKind   `json:"kind"`
	Status        SourceStatus `json:"status"`
	ProcessedPath string       `json:"processed_path,omitempty"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Chunk is one indexed text segment of a source.
type Chunk struct {
	SourceID  string
	Seq       int
	Text      string
	Embedding []float32
}

type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
)

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Turn is one message of a conversation. CitedSourceIDs holds the sources
// whose chunks actually grounded an assistant turn.
type Turn struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           TurnRole  `json:"role"`
	Content        string    `json:"content"`
	CitedSourceIDs []string  `json:"cited_source_ids,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// StatusEvent is what the broadcaster fans out to subscribers. Status is a
// SourceStatus value for pipeline transitions, or one of the summary
// progress markers for summarization jobs.
type StatusEvent struct {
	SourceID     string `json:"source_id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Summary job progress markers published on the status stream.
const (
	EventSummarizing      = "summarizing"
	EventSummaryCompleted = "summary_completed"
	EventSummaryFailed    = "summary_failed"
)
