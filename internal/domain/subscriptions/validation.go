package subscriptions

import (
	"errors"
	"fmt"
	"html"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

const maxMetadataKeyLen = 64

var (
	validate = newValidator()
	policy   = bluemonday.StrictPolicy()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

type CreateRequest struct {
	SalonID   string         `json:"salon_id" validate:"required,uuid"`
	PlanID    string         `json:"plan_id" validate:"required,max=128"`
	TrialDays *int           `json:"trial_days" validate:"omitempty,min=0,max=90"`
	Metadata  map[string]any `json:"metadata" validate:"omitempty,max=50"`
}

// UpdateRequest is the generic patch. Only these two fields are mutable here;
// a nil metadata value removes that key.
type UpdateRequest struct {
	CancelAtPeriodEnd *bool          `json:"cancel_at_period_end"`
	Metadata          map[string]any `json:"metadata" validate:"omitempty,max=50"`
}

func (r UpdateRequest) Empty() bool {
	return r.CancelAtPeriodEnd == nil && len(r.Metadata) == 0
}

type ChangePlanRequest struct {
	PlanID  string `json:"plan_id" validate:"required,max=128"`
	Prorate *bool  `json:"prorate"`
}

// Prorated defaults to true when the caller did not say.
func (r ChangePlanRequest) Prorated() bool {
	return r.Prorate == nil || *r.Prorate
}

// DefaultCancelReason is recorded when the caller gives no reason.
const DefaultCancelReason = "requested_by_customer"

type CancelRequest struct {
	Immediately bool   `json:"immediately"`
	Reason      string `json:"reason" validate:"omitempty,max=500"`
}

func (r CancelRequest) reason() string {
	if r.Reason == "" {
		return DefaultCancelReason
	}
	return r.Reason
}

type PauseRequest struct {
	PauseUntil *time.Time `json:"pause_until" validate:"required"`
}

type ListRequest struct {
	SalonID    string `form:"salon_id" json:"salon_id" validate:"omitempty,uuid"`
	CustomerID string `form:"customer_id" json:"customer_id" validate:"omitempty,max=64"`
	Status     string `form:"status" json:"status" validate:"omitempty,oneof=active trialing past_due incomplete cancelled"`
}

func (r ListRequest) Filter() Filter {
	f := Filter{SalonID: r.SalonID, CustomerID: r.CustomerID}
	if r.Status != "" {
		f.Statuses = []Status{Status(r.Status)}
	}
	return f
}

func (r CreateRequest) Validate() (CreateRequest, error) {
	r.SalonID = sanitize(r.SalonID)
	r.PlanID = sanitize(r.PlanID)
	r.Metadata = sanitizeMap(r.Metadata)
	fields := structErrors(r)
	fields = append(fields, metadataErrors(r.Metadata)...)
	if len(fields) > 0 {
		return r, errValidation(fields)
	}
	return r, nil
}

func (r UpdateRequest) Validate() (UpdateRequest, error) {
	r.Metadata = sanitizeMap(r.Metadata)
	fields := structErrors(r)
	fields = append(fields, metadataErrors(r.Metadata)...)
	if len(fields) > 0 {
		return r, errValidation(fields)
	}
	return r, nil
}

func (r ChangePlanRequest) Validate() (ChangePlanRequest, error) {
	r.PlanID = sanitize(r.PlanID)
	if fields := structErrors(r); len(fields) > 0 {
		return r, errValidation(fields)
	}
	return r, nil
}

func (r CancelRequest) Validate() (CancelRequest, error) {
	r.Reason = sanitize(r.Reason)
	if fields := structErrors(r); len(fields) > 0 {
		return r, errValidation(fields)
	}
	return r, nil
}

func (r PauseRequest) Validate() (PauseRequest, error) {
	if fields := structErrors(r); len(fields) > 0 {
		return r, errValidation(fields)
	}
	return r, nil
}

func (r ListRequest) Validate() (ListRequest, error) {
	r.SalonID = sanitize(r.SalonID)
	r.CustomerID = sanitize(r.CustomerID)
	r.Status = sanitize(r.Status)
	if fields := structErrors(r); len(fields) > 0 {
		return r, errValidation(fields)
	}
	return r, nil
}

// BindError turns a decoding failure into a validation error.
func BindError(err error) error {
	return errValidation([]FieldError{{Field: "body", Message: "must be a valid JSON object"}})
}

// sanitize strips markup and leaves entities decoded. Decoding can surface
// escaped tags, so it repeats until the text is stable.
func sanitize(s string) string {
	for i := 0; i < 3; i++ {
		next := html.UnescapeString(policy.Sanitize(s))
		if next == s {
			break
		}
		s = next
	}
	return strings.TrimSpace(s)
}

func sanitizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[strings.TrimSpace(k)] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case string:
		return sanitize(t)
	case map[string]any:
		return sanitizeMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = sanitizeValue(t[i])
		}
		return out
	default:
		return v
	}
}

func metadataErrors(m map[string]any) []FieldError {
	var fields []FieldError
	for k := range m {
		switch {
		case k == "":
			fields = append(fields, FieldError{Field: "metadata", Message: "keys must not be empty"})
		case len(k) > maxMetadataKeyLen:
			fields = append(fields, FieldError{Field: "metadata." + k, Message: fmt.Sprintf("key must be at most %d characters", maxMetadataKeyLen)})
		case IsReservedKey(k):
			fields = append(fields, FieldError{Field: "metadata." + k, Message: "is reserved"})
		}
	}
	return fields
}

func structErrors(v any) []FieldError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "body", Message: "is invalid"}}
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return fields
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a valid identifier"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.Map {
			return "must have at most " + fe.Param() + " entries"
		}
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	default:
		return "is invalid"
	}
}
