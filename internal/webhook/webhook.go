// Package webhook decodes and authenticates change notifications delivered by
// the content platform.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/errors"
)

// SignatureHeader carries the base64 HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Kontent-ai-Signature"

// ObjectTypeContentItem is the only object type the sync processes.
const ObjectTypeContentItem = "content_item"

// Delivery is one webhook request body.
type Delivery struct {
	Notifications []Notification `json:"notifications"`
}

// Notification describes a change to one content item.
type Notification struct {
	Data    Data    `json:"data"`
	Message Message `json:"message"`
}

// Data identifies the changed object.
type Data struct {
	System System `json:"system"`
}

// System is the changed item's system metadata.
type System struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Codename   string `json:"codename"`
	Language   string `json:"language"`
	Type       string `json:"type"`
	Collection string `json:"collection"`
}

// Message describes the event.
type Message struct {
	EnvironmentID string `json:"environment_id"`
	ProjectID     string `json:"project_id"`
	ObjectType    string `json:"object_type"`
	Action        string `json:"action"`
	DeliverySlot  string `json:"delivery_slot"`
}

// Environment returns the environment the change happened in, falling back
// to the legacy project id.
func (m Message) Environment() string {
	if m.EnvironmentID != "" {
		return m.EnvironmentID
	}
	return m.ProjectID
}

// IsContentItem reports whether n is about a content item.
func (n Notification) IsContentItem() bool {
	return n.Message.ObjectType == ObjectTypeContentItem
}

// Parse decodes a delivery body.
func Parse(body []byte) (Delivery, error) {
	var d Delivery
	if err := json.Unmarshal(body, &d); err != nil {
		return Delivery{}, fmt.Errorf("decoding webhook body: %w: %v", apperrors.ErrInvalidInput, err)
	}
	if d.Notifications == nil {
		return Delivery{}, fmt.Errorf("webhook body has no notifications: %w", apperrors.ErrInvalidInput)
	}
	return d, nil
}

// Sign returns the signature of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against body and secret in constant time.
func Verify(body []byte, signature, secret string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("missing %s header: %w", SignatureHeader, apperrors.ErrUnauthorized)
	}
	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("malformed signature: %w", apperrors.ErrUnauthorized)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return fmt.Errorf("signature mismatch: %w", apperrors.ErrUnauthorized)
	}
	return nil
}
