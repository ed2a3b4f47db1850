// Package voice announces check-in outcomes at the kiosk. Messages come from
// an embedded catalog and are spoken by an external text-to-speech service.
package voice

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var messagesYAML []byte

// MessageKey identifies an entry in the announcement catalog.
type MessageKey string

const (
	MsgPresent           MessageKey = "present"
	MsgLate              MessageKey = "late"
	MsgAlreadyRecorded   MessageKey = "already_recorded"
	MsgDuplicateEntry    MessageKey = "duplicate_entry"
	MsgFaceNotRegistered MessageKey = "face_not_registered"
	MsgFaceNotRecognized MessageKey = "face_not_recognized"
	MsgMultipleFaces     MessageKey = "multiple_faces"
	MsgLivenessFailed    MessageKey = "liveness_failed"
	MsgError             MessageKey = "error"
	MsgWelcome           MessageKey = "welcome"
)

// Catalog maps message keys to spoken text.
type Catalog map[MessageKey]string

// LoadCatalog parses the embedded message catalog.
func LoadCatalog() (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(messagesYAML, &c); err != nil {
		return nil, fmt.Errorf("failed to parse message catalog: %w", err)
	}
	if len(c) == 0 {
		return nil, fmt.Errorf("message catalog is empty")
	}
	return c, nil
}

// Text returns the spoken text for key, falling back to the generic error
// message for unknown keys.
func (c Catalog) Text(key MessageKey) string {
	if text, ok := c[key]; ok {
		return text
	}
	return c[MsgError]
}
