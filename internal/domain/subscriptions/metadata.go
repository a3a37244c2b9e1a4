package subscriptions

import (
	"encoding/json"
	"fmt"
	"time"
)

// Reserved metadata keys written by lifecycle operations.
const (
	KeyPaused         = "paused"
	KeyPauseUntil     = "pause_until"
	KeyPausedAt       = "paused_at"
	KeyResumedAt      = "resumed_at"
	KeyPreviousPlanID = "previous_plan_id"
	KeyPlanChangedAt  = "plan_changed_at"
	KeyProrated       = "prorated"
	KeyCancelledAt    = "cancelled_at"
	KeyCancelledBy    = "cancelled_by"
	KeyCancelReason   = "cancel_reason"
)

var reservedKeys = map[string]struct{}{
	KeyPaused:         {},
	KeyPauseUntil:     {},
	KeyPausedAt:       {},
	KeyResumedAt:      {},
	KeyPreviousPlanID: {},
	KeyPlanChangedAt:  {},
	KeyProrated:       {},
	KeyCancelledAt:    {},
	KeyCancelledBy:    {},
	KeyCancelReason:   {},
}

func IsReservedKey(k string) bool {
	_, ok := reservedKeys[k]
	return ok
}

// MarshalJSON flattens the typed fields back into the single metadata object
// that clients and the stored column share.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+10)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.Pause != nil {
		out[KeyPaused] = true
		out[KeyPauseUntil] = m.Pause.Until
		out[KeyPausedAt] = m.Pause.PausedAt
	}
	if m.PlanChange != nil {
		out[KeyPreviousPlanID] = m.PlanChange.PreviousPlanID
		out[KeyPlanChangedAt] = m.PlanChange.ChangedAt
		out[KeyProrated] = m.PlanChange.Prorated
	}
	if m.Cancellation != nil {
		out[KeyCancelledAt] = m.Cancellation.At
		out[KeyCancelledBy] = m.Cancellation.By
		out[KeyCancelReason] = m.Cancellation.Reason
	}
	if m.ResumedAt != nil {
		out[KeyResumedAt] = *m.ResumedAt
	}
	return json.Marshal(out)
}

func (m *Metadata) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = Metadata{}

	var paused bool
	if v, ok := raw[KeyPaused]; ok {
		if err := json.Unmarshal(v, &paused); err != nil {
			return fmt.Errorf("metadata %s: %w", KeyPaused, err)
		}
	}
	if paused {
		p := &PauseInfo{}
		if err := unmarshalTime(raw, KeyPauseUntil, &p.Until); err != nil {
			return err
		}
		if err := unmarshalTime(raw, KeyPausedAt, &p.PausedAt); err != nil {
			return err
		}
		m.Pause = p
	}

	if v, ok := raw[KeyPreviousPlanID]; ok {
		pc := &PlanChangeInfo{}
		if err := json.Unmarshal(v, &pc.PreviousPlanID); err != nil {
			return fmt.Errorf("metadata %s: %w", KeyPreviousPlanID, err)
		}
		if err := unmarshalTime(raw, KeyPlanChangedAt, &pc.ChangedAt); err != nil {
			return err
		}
		if v, ok := raw[KeyProrated]; ok {
			if err := json.Unmarshal(v, &pc.Prorated); err != nil {
				return fmt.Errorf("metadata %s: %w", KeyProrated, err)
			}
		}
		m.PlanChange = pc
	}

	if _, ok := raw[KeyCancelledAt]; ok {
		c := &CancellationInfo{}
		if err := unmarshalTime(raw, KeyCancelledAt, &c.At); err != nil {
			return err
		}
		if err := unmarshalString(raw, KeyCancelledBy, &c.By); err != nil {
			return err
		}
		if err := unmarshalString(raw, KeyCancelReason, &c.Reason); err != nil {
			return err
		}
		m.Cancellation = c
	}

	if _, ok := raw[KeyResumedAt]; ok {
		var t time.Time
		if err := unmarshalTime(raw, KeyResumedAt, &t); err != nil {
			return err
		}
		m.ResumedAt = &t
	}

	for k, v := range raw {
		if IsReservedKey(k) {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return fmt.Errorf("metadata %s: %w", k, err)
		}
		if m.Extra == nil {
			m.Extra = make(map[string]any)
		}
		m.Extra[k] = val
	}
	return nil
}

func unmarshalString(raw map[string]json.RawMessage, key string, dst *string) error {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("metadata %s: %w", key, err)
	}
	return nil
}

func unmarshalTime(raw map[string]json.RawMessage, key string, dst *time.Time) error {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("metadata %s: %w", key, err)
	}
	return nil
}
