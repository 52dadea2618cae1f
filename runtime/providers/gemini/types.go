package gemini

// Wire types for the Gemini Live BidiGenerateContent protocol. Server
// messages use camelCase keys; the realtime input sent upstream keeps the
// snake_case keys the Live API also accepts.

// ServerMessage is one BidiGenerateContentServerMessage.
type ServerMessage struct {
	SetupComplete *SetupComplete `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
	GoAway        *GoAway        `json:"goAway,omitempty"`
}

// SetupComplete acknowledges the setup message (empty object).
type SetupComplete struct{}

// UsageMetadata contains token usage information.
type UsageMetadata struct {
	PromptTokenCount   int `json:"promptTokenCount,omitempty"`
	ResponseTokenCount int `json:"responseTokenCount,omitempty"`
	TotalTokenCount    int `json:"totalTokenCount,omitempty"`
}

// GoAway warns that the server will close the session soon.
type GoAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

// ServerContent is one BidiGenerateContentServerContent.
type ServerContent struct {
	ModelTurn          *ModelTurn `json:"modelTurn,omitempty"`
	TurnComplete       bool       `json:"turnComplete,omitempty"`
	GenerationComplete bool       `json:"generationComplete,omitempty"`
	Interrupted        bool       `json:"interrupted,omitempty"`
}

// ModelTurn is the model's share of a turn.
type ModelTurn struct {
	Parts []Part `json:"parts,omitempty"`
}

// Part is a text or inline data content part.
type Part struct {
	Text       *string     `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData is base64-encoded media.
type InlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// realtimeInputMessage carries client media upstream.
type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtime_input"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"media_chunks"`
}

type mediaChunk struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}
