package protocol

import "time"

// Transcript is the recognition result broadcast on the bus.
type Transcript struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	Language   string    `json:"language"`
	Confidence float64   `json:"confidence,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// AudioChunk carries synthesized PCM toward the playback client.
type AudioChunk struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// SynthStatus announces utterance completion.
type SynthStatus struct {
	SessionID string    `json:"session_id"`
	Completed bool      `json:"completed"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DialogStatus mirrors the confirmation controller's observable state.
type DialogStatus struct {
	SessionID string    `json:"session_id"`
	AttemptID string    `json:"attempt_id"`
	State     string    `json:"state"`
	Listening bool      `json:"listening"`
	Candidate int       `json:"candidate"`
	Feedback  string    `json:"feedback"`
	Attempts  int       `json:"attempts"`
	Manual    bool      `json:"manual_offered"`
	Question  int       `json:"question"`
	Timestamp time.Time `json:"timestamp"`
}

// DialogEvent is a timeline entry for the session event store and observers.
type DialogEvent struct {
	SessionID string    `json:"session_id"`
	AttemptID string    `json:"attempt_id"`
	Type      string    `json:"type"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectSynthAudio      = "voxexam.synth.audio"
	SubjectSynthDone       = "voxexam.synth.done"
	SubjectTranscriptFinal = "voxexam.stt.transcript"
	SubjectDialogStatus    = "voxexam.dialog.status"
	SubjectDialogEvent     = "voxexam.dialog.event"
)
