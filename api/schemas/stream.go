package schemas

import "encoding/json"

// -- Outbound Stream Frames --

// FrameType identifies an outbound frame on the live channel.
type FrameType string

const (
	FrameTextInput       FrameType = "text_input"
	FrameAudioChunk      FrameType = "audio_chunk"
	FrameVideoFrame      FrameType = "video_frame"
	FrameMultimodalQuery FrameType = "multimodal_query"
)

// TextInputFrame carries a plain user utterance.
type TextInputFrame struct {
	Type FrameType `json:"type"`
	Text string    `json:"text"`
}

// AudioChunkFrame carries one base64-encoded chunk of captured audio.
type AudioChunkFrame struct {
	Type      FrameType `json:"type"`
	Audio     string    `json:"audio"`
	Timestamp float64   `json:"timestamp,omitempty"`
}

// VideoFrameFrame carries one base64-encoded captured video frame.
type VideoFrameFrame struct {
	Type      FrameType `json:"type"`
	Image     string    `json:"image"`
	Timestamp float64   `json:"timestamp,omitempty"`
}

// MultimodalQueryFrame carries a text query with an optional attached image.
type MultimodalQueryFrame struct {
	Type  FrameType `json:"type"`
	Text  string    `json:"text"`
	Image string    `json:"image,omitempty"`
}

// NewTextInput builds a text_input frame.
func NewTextInput(text string) TextInputFrame {
	return TextInputFrame{Type: FrameTextInput, Text: text}
}

// NewAudioChunk builds an audio_chunk frame from already-encoded audio data.
func NewAudioChunk(audioB64 string, timestamp float64) AudioChunkFrame {
	return AudioChunkFrame{Type: FrameAudioChunk, Audio: audioB64, Timestamp: timestamp}
}

// NewVideoFrame builds a video_frame frame from an already-encoded image.
func NewVideoFrame(imageB64 string, timestamp float64) VideoFrameFrame {
	return VideoFrameFrame{Type: FrameVideoFrame, Image: imageB64, Timestamp: timestamp}
}

// NewMultimodalQuery builds a multimodal_query frame. The image is optional.
func NewMultimodalQuery(text, imageB64 string) MultimodalQueryFrame {
	return MultimodalQueryFrame{Type: FrameMultimodalQuery, Text: text, Image: imageB64}
}

// -- Inbound Live Events --

// EventKind discriminates inbound frames on the live channel.
type EventKind string

const (
	EventSessionReady      EventKind = "session_ready"
	EventVisionDescription EventKind = "vision_description"
	EventAudioResponse     EventKind = "audio_response"
	EventTextResponse      EventKind = "text_response"
	EventError             EventKind = "error"
	// EventUnknown marks a frame whose type the client does not recognize.
	// The raw payload is preserved untouched on LiveEvent.Raw.
	EventUnknown EventKind = "unknown"
)

// SessionReadyEvent announces that the server finished setting up the session.
type SessionReadyEvent struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status,omitempty"`
}

// VisionDescriptionEvent carries the server's description of a video frame.
type VisionDescriptionEvent struct {
	Description string  `json:"description"`
	Timestamp   float64 `json:"timestamp,omitempty"`
}

// AudioResponseEvent reports the status of audio the server is producing.
type AudioResponseEvent struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// TextResponseEvent carries a text answer, optionally grounded in sources.
type TextResponseEvent struct {
	Answer    string   `json:"answer"`
	Sources   []string `json:"sources,omitempty"`
	HasVision bool     `json:"has_vision,omitempty"`
}

// ErrorEvent carries a server-reported or locally synthesized error.
type ErrorEvent struct {
	Message string `json:"message"`
}

// LiveEvent is the tagged union over every inbound frame. Exactly one of the
// payload pointers matching Kind is non-nil; unknown frames keep only Raw.
// Raw always holds the original bytes as delivered by the transport.
type LiveEvent struct {
	Kind         EventKind
	SessionReady *SessionReadyEvent
	Vision       *VisionDescriptionEvent
	Audio        *AudioResponseEvent
	Text         *TextResponseEvent
	Err          *ErrorEvent
	Raw          json.RawMessage
}
