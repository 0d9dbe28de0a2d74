package events

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
)

// Decode parses the JSON payload of an event of the given kind and validates it.
func Decode(kind Kind, payload []byte) (Event, error) {
	var (
		event Event
		err   error
	)

	switch kind {
	case KindCartCreated:
		event, err = unmarshal[CartCreated](payload)
	case KindCartDeleted:
		event, err = unmarshal[CartDeleted](payload)
	case KindCartCleared:
		event, err = unmarshal[CartCleared](payload)
	case KindProductAdded:
		event, err = unmarshal[ProductAdded](payload)
	case KindProductRemoved:
		event, err = unmarshal[ProductRemoved](payload)
	case KindProductQuantityUpdated:
		event, err = unmarshal[ProductQuantityUpdated](payload)
	case KindCouponAdded:
		event, err = unmarshal[CouponAdded](payload)
	case KindCouponRemoved:
		event, err = unmarshal[CouponRemoved](payload)
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "%q", kind)
	}
	if err != nil {
		return nil, err
	}

	if err := event.Validate(); err != nil {
		return nil, errors.Wrapf(err, "%s", kind)
	}
	return event, nil
}

// Encode renders the event payload the way producers publish it.
func Encode(event Event) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s", event.Kind())
	}
	return payload, nil
}

func unmarshal[T Event](payload []byte) (Event, error) {
	var event T
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w: %w", ErrMalformedEvent, err)
	}
	return event, nil
}
