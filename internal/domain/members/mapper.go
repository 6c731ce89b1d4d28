package members

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rcfe/casesync/internal/platform/caspio"
)

// Upstream column names in the members table.
const (
	colClientID        = "Client_ID2"
	colFirstName       = "Senior_First"
	colLastName        = "Senior_Last"
	colAssignedStaffID = "Assigned_Staff_ID"
	colStaffAssigned   = "Staff_Assigned"
	colSocialWorker    = "Social_Worker_Assigned"
	colCaseManager     = "Kaiser_User_Assignment"
	colAuthStatus      = "CalAIM_Status"
	colHold            = "Hold_For_Social_Worker"
	colAuthEndDate     = "Authorization_End_Date_T2038"
	colPlan            = "CalAIM_MCO"
	colRCFEID          = "RCFE_Registered_ID"
	colRCFEName        = "RCFE_Name"
	colRCFEAddress     = "RCFE_Address"
	colRCFEContact     = "RCFE_Administrator"
	colRCFEPhone       = "RCFE_Administrator_Phone"
	colRCFEEmail       = "RCFE_Administrator_Email"
	colLastUpdated     = "Last_Updated"
)

// FromRow maps an upstream row; rows without a client id yield nil.
func FromRow(r caspio.Row, now time.Time) *Member {
	id := r.String(colClientID)
	if id == "" {
		return nil
	}
	m := &Member{
		ClientID:             id,
		FirstName:            r.String(colFirstName),
		LastName:             r.String(colLastName),
		AssignedStaffID:      r.String(colAssignedStaffID),
		StaffAssigned:        r.String(colStaffAssigned),
		SocialWorkerAssigned: r.String(colSocialWorker),
		CaseManager:          r.String(colCaseManager),
		AuthorizationStatus:  r.String(colAuthStatus),
		HoldText:             r.String(colHold),
		AuthEndDate:          r.Time(colAuthEndDate),
		PlanType:             r.String(colPlan),
		Facility: Facility{
			ID:           r.String(colRCFEID),
			Name:         r.String(colRCFEName),
			Address:      r.String(colRCFEAddress),
			ContactName:  r.String(colRCFEContact),
			ContactPhone: r.String(colRCFEPhone),
			ContactEmail: r.String(colRCFEEmail),
		},
		UpstreamUpdatedAt: r.Time(colLastUpdated),
		SyncedAt:          now,
	}
	m.OnHold = DeriveHold(m.HoldText)
	m.ComputeSearchKeys()
	if raw, err := json.Marshal(r); err == nil {
		m.Raw = raw
	}
	return m
}

// DeriveHold reads the free-text hold column. Anything mentioning "hold" or
// an affirmative word counts, unless it is negated.
func DeriveHold(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	switch t {
	case "", "no", "n", "false", "0", "none", "off":
		return false
	case "yes", "y", "true", "1", "x", "on":
		return true
	}
	if strings.HasPrefix(t, "no ") || strings.HasPrefix(t, "not ") || strings.Contains(t, "released") || strings.Contains(t, "removed") {
		return false
	}
	return strings.Contains(t, "hold")
}
