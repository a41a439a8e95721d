package model

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Content part discriminants. Parts form a closed set of tagged variants,
// dispatched on Type; unknown types are carried through untouched but
// contribute nothing to text extraction.
const (
	PartTypeText  = "text"
	PartTypeImage = "image"
	PartTypeFile  = "file"
)

type Part struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Image     string `json:"image,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
}

// Metadata carries the optional file attachment fields of a message.
type Metadata struct {
	FileName    string `json:"fileName,omitempty"`
	FileType    string `json:"fileType,omitempty"`
	FileSize    int64  `json:"fileSize,omitempty"`
	FileContent string `json:"fileContent,omitempty"`
}

type Message struct {
	Role     string    `json:"role"`
	Parts    []Part    `json:"parts"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// HasFile reports whether the message carries an uploaded file payload.
func (m *Message) HasFile() bool {
	return m.Metadata != nil && m.Metadata.FileContent != ""
}

// PlainText concatenates the text parts of the message in part order.
// Non-text parts contribute nothing.
func (m *Message) PlainText() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type != PartTypeText {
			continue
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

const defaultFileName = "uploaded-file"

// Attachment is the decoded form of a file carried in message metadata.
type Attachment struct {
	FileName  string
	MediaType string
	Size      int64
	Data      []byte
}

// DecodeAttachment decodes the base64 file payload. A data-URL style scheme
// prefix ("data:...;base64,") is stripped before decoding.
func (m *Metadata) DecodeAttachment() (*Attachment, error) {
	encoded := m.FileContent
	if idx := strings.IndexByte(encoded, ','); idx >= 0 {
		encoded = encoded[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode file content: %w", err)
	}
	name := m.FileName
	if name == "" {
		name = defaultFileName
	}
	mediaType := m.FileType
	if mediaType == "" {
		mediaType = "unknown"
	}
	return &Attachment{
		FileName:  name,
		MediaType: mediaType,
		Size:      m.FileSize,
		Data:      data,
	}, nil
}
