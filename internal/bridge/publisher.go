package bridge

import (
	"github.com/ThreeDotsLabs/watermill/message"

	idspkg "github.com/mculink/mculink/internal/ids"
	metadatapkg "github.com/mculink/mculink/internal/metadata"
)

// Metadata keys stamped onto host messages emitted by the bridge.
const (
	MetadataKeyCorrelationID = "correlation_id"
	MetadataKeySchema        = "mculink_schema"
)

// NewHostMessage wraps a payload in a Watermill message with a fresh ULID and
// the supplied metadata.
func NewHostMessage(payload []byte, md metadatapkg.Metadata) *message.Message {
	msg := message.NewMessage(idspkg.CreateULID(), payload)
	msg.Metadata = metadatapkg.ToWatermill(md)
	return msg
}
