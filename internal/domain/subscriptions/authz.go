package subscriptions

// Caller is the identity an operation runs as. UserID comes from the identity
// provider, TenantID and Role from the caller's active tenant membership.
type Caller struct {
	UserID   string
	TenantID string
	Role     string
}

func (c Caller) Authenticated() bool { return c.UserID != "" }

// Basis explains why a caller was authorised. It is for logs only.
type Basis string

const (
	BasisNone        Basis = ""
	BasisOwner       Basis = "owner"
	BasisTenantAdmin Basis = "tenant_admin"
)

var tenantAdminRoles = map[string]struct{}{
	"admin":   {},
	"owner":   {},
	"manager": {},
}

// IsTenantAdmin reports whether the caller administers salonID.
func (c Caller) IsTenantAdmin(salonID string) bool {
	if c.TenantID == "" || c.TenantID != salonID {
		return false
	}
	_, ok := tenantAdminRoles[c.Role]
	return ok
}

// Authorize decides whether caller may act on sub.
func Authorize(sub *Subscription, caller Caller) (bool, Basis) {
	if !caller.Authenticated() || sub == nil {
		return false, BasisNone
	}
	if caller.UserID == sub.CustomerID {
		return true, BasisOwner
	}
	if caller.IsTenantAdmin(sub.SalonID) {
		return true, BasisTenantAdmin
	}
	return false, BasisNone
}
