package queue

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// MessageVersion is the payload version written by EncodeMessage.
const MessageVersion = 1

// Message asks a worker to process one job.
type Message struct {
	JobID      string `json:"jobId"`
	RequestID  string `json:"requestId,omitempty"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// NewMessage stamps a message for jobID with the current time.
func NewMessage(jobID, requestID string, now time.Time) Message {
	return Message{
		JobID:      jobID,
		RequestID:  requestID,
		EnqueuedAt: now.UTC().Format(time.RFC3339Nano),
		Version:    MessageVersion,
	}
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// MessageMeta identifies a payload in logs without printing it.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

func computeMeta(body []byte) MessageMeta {
	if len(body) == 0 {
		return MessageMeta{}
	}
	sum := sha256.Sum256(body)
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrMissingJobID indicates a message without a job id.
type ErrMissingJobID struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingJobID) Error() string { return "missing job id" }

// ParseMessage validates and decodes a queue payload.
func ParseMessage(body []byte) (Message, MessageMeta, error) {
	meta := computeMeta(body)
	if strings.TrimSpace(string(body)) == "" {
		return Message{}, meta, ErrEmptyBody{Meta: meta}
	}
	msg, err := DecodeMessage(body)
	if err != nil {
		return Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.JobID) == "" {
		return msg, meta, ErrMissingJobID{Meta: meta, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}
