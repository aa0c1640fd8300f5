package price

import (
	"encoding/json"

	ierr "github.com/ledgerbase/billing/internal/errors"
)

// envelope is the on-the-wire shape for a polymorphic Component: a kind
// discriminator plus the concrete variant's own JSON. Storage (C11)
// persists PlanVersion/Subscription snapshots as JSON, so the interface
// field needs an explicit tag the way a oneof would carry one.
type envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func kindOf(c Component) string {
	switch c.(type) {
	case *Rate:
		return "rate"
	case *Slot:
		return "slot"
	case *Capacity:
		return "capacity"
	case *Usage:
		return "usage"
	case *ExtraRecurring:
		return "extra_recurring"
	case *OneTime:
		return "one_time"
	default:
		return ""
	}
}

// MarshalComponent encodes a Component as a kind+data envelope.
func MarshalComponent(c Component) ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	kind := kindOf(c)
	if kind == "" {
		return nil, ierr.NewError("unknown price component variant").Mark(ierr.ErrSerde).Err()
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrSerde).Err()
	}
	return json.Marshal(envelope{Kind: kind, Data: data})
}

// UnmarshalComponent decodes a kind+data envelope back into the concrete
// variant type behind the Component interface.
func UnmarshalComponent(raw []byte) (Component, error) {
	if string(raw) == "null" || len(raw) == 0 {
		return nil, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrSerde).Err()
	}
	var c Component
	switch env.Kind {
	case "rate":
		c = &Rate{}
	case "slot":
		c = &Slot{}
	case "capacity":
		c = &Capacity{}
	case "usage":
		c = &Usage{}
	case "extra_recurring":
		c = &ExtraRecurring{}
	case "one_time":
		c = &OneTime{}
	default:
		return nil, ierr.NewError("unknown price component kind").WithHintf("kind=%s", env.Kind).Mark(ierr.ErrSerde).Err()
	}
	if err := json.Unmarshal(env.Data, c); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrSerde).Err()
	}
	return c, nil
}

// ComponentList is a []Component that marshals/unmarshals each element
// through the envelope codec above.
type ComponentList []Component

func (l ComponentList) MarshalJSON() ([]byte, error) {
	envs := make([]json.RawMessage, len(l))
	for i, c := range l {
		raw, err := MarshalComponent(c)
		if err != nil {
			return nil, err
		}
		envs[i] = raw
	}
	return json.Marshal(envs)
}

func (l *ComponentList) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return ierr.WithError(err).Mark(ierr.ErrSerde).Err()
	}
	out := make(ComponentList, 0, len(raws))
	for _, raw := range raws {
		c, err := UnmarshalComponent(raw)
		if err != nil {
			return err
		}
		out = append(out, c)
	}
	*l = out
	return nil
}
