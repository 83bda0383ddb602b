package activity

import (
	"bytes"
	"strings"
)

const (
	typeCreate  = "Create"
	typeDelete  = "Delete"
	typeLike    = "Like"
	typeDislike = "Dislike"
	typeUndo    = "Undo"
	typeFollow  = "Follow"
	typeBlock   = "Block"
)

// Image is a media attachment of a post, comment or profile.
type Image struct {
	MediaType string `json:"mediaType,omitempty"`
	Content   string `json:"content,omitempty"`
	Name      string `json:"name,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Wallet is a payment address advertised in a profile.
type Wallet struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
}

type payloadRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// imageList accepts either a single image object or an array of them.
type imageList []Image

func (list *imageList) UnmarshalJSON(raw []byte) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*list = nil
		return nil
	}
	if trimmed[0] == '[' {
		var images []Image
		if err := json.Unmarshal(trimmed, &images); err != nil {
			return err
		}
		*list = images
		return nil
	}
	var single Image
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return err
	}
	*list = imageList{single}
	return nil
}

type payloadObject struct {
	Type      string         `json:"type"`
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Content   string         `json:"content"`
	Image     imageList      `json:"image"`
	InReplyTo *payloadRef    `json:"inreplyto"`
	Forward   *payloadRef    `json:"forward"`
	Describes *payloadRef    `json:"describes"`
	Wallet    []Wallet       `json:"wallet"`
	Object    *payloadObject `json:"object"`
}

func (object *payloadObject) hasContent() bool {
	return object != nil && (strings.TrimSpace(object.Content) != "" || len(object.Image) > 0 || strings.TrimSpace(object.Name) != "")
}

func (object *payloadObject) id() string {
	if object == nil {
		return ""
	}
	return strings.TrimSpace(object.ID)
}

type payload struct {
	Type   string         `json:"type"`
	Object *payloadObject `json:"object"`
}

func isType(value, expected string) bool {
	return strings.EqualFold(strings.TrimSpace(value), expected)
}

func refID(ref *payloadRef) string {
	if ref == nil {
		return ""
	}
	return strings.TrimSpace(ref.ID)
}

func decodePayload(raw []byte) (payload, error) {
	var decoded payload
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return payload{}, err
	}
	return decoded, nil
}
