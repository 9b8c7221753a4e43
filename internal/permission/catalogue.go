package permission

import "github.com/frahmantamala/hospitality-access/internal/core/role"

// Action keys used across the catalogue.
const (
	ActionView             = "view"
	ActionCreate           = "create"
	ActionUpdate           = "update"
	ActionDelete           = "delete"
	ActionApprove          = "approve"
	ActionVoid             = "void"
	ActionRefund           = "refund"
	ActionDiscount         = "discount"
	ActionCustomerCredit   = "customer_credit"
	ActionExport           = "export"
	ActionViewReports      = "view_reports"
	ActionFinancialReports = "financial_reports"
	ActionAuditLogs        = "audit_logs"
	ActionSendReceipts     = "send_receipts"
)

// Module keys referenced by the HTTP routes.
const (
	ModuleUsers       = "users"
	ModulePermissions = "permissions"
	ModuleAudit       = "audit"
	ModuleReports     = "reports"
)

func DefaultModules() []Module {
	keys := []struct{ key, name string }{
		{"pos", "Point of Sale"},
		{"restaurant", "Restaurant"},
		{"delivery", "Delivery"},
		{"inventory", "Inventory"},
		{"accounting", "Accounting"},
		{ModuleReports, "Reports"},
		{ModuleUsers, "Users"},
		{ModulePermissions, "Permissions"},
		{ModuleAudit, "Audit Log"},
		{"settings", "Settings"},
		{"rooms", "Rooms"},
		{"frontdesk", "Front Desk"},
		{"housekeeping", "Housekeeping"},
		{"maintenance", "Maintenance"},
		{"concierge", "Concierge"},
		{"spa", "Spa"},
		{"events", "Events"},
		{"room_service", "Room Service"},
		{"security", "Security"},
		{"hr", "Human Resources"},
		{"revenue", "Revenue Management"},
		{"sales_office", "Sales Office"},
	}

	out := make([]Module, 0, len(keys))
	for i, k := range keys {
		out = append(out, Module{Key: k.key, DisplayName: k.name, SortOrder: (i + 1) * 10, IsActive: true})
	}
	return out
}

func DefaultActions() []Action {
	return []Action{
		{Key: ActionView, DisplayName: "View"},
		{Key: ActionCreate, DisplayName: "Create"},
		{Key: ActionUpdate, DisplayName: "Update"},
		{Key: ActionDelete, DisplayName: "Delete", IsSensitive: true, RequiresApproval: true},
		{Key: ActionApprove, DisplayName: "Approve", IsSensitive: true},
		{Key: ActionVoid, DisplayName: "Void", IsSensitive: true, RequiresApproval: true},
		{Key: ActionRefund, DisplayName: "Refund", IsSensitive: true, RequiresApproval: true},
		{Key: ActionDiscount, DisplayName: "Apply Discount", IsSensitive: true},
		{Key: ActionCustomerCredit, DisplayName: "Customer Credit", IsSensitive: true, RequiresApproval: true},
		{Key: ActionExport, DisplayName: "Export"},
		{Key: ActionViewReports, DisplayName: "View Reports"},
		{Key: ActionFinancialReports, DisplayName: "Financial Reports", IsSensitive: true},
		{Key: ActionAuditLogs, DisplayName: "Audit Logs", IsSensitive: true},
		{Key: ActionSendReceipts, DisplayName: "Send Receipts"},
	}
}

// roleTemplates lists module -> actions for each non-administrative role.
// Administrative roles get the whole catalogue.
var roleTemplates = map[role.Role]map[string][]string{
	role.Manager: {
		"pos":          {ActionView, ActionCreate, ActionUpdate, ActionVoid, ActionRefund, ActionDiscount},
		"restaurant":   {ActionView, ActionCreate, ActionUpdate, ActionVoid},
		"delivery":     {ActionView, ActionCreate, ActionUpdate},
		"inventory":    {ActionView, ActionCreate, ActionUpdate},
		"rooms":        {ActionView, ActionCreate, ActionUpdate},
		"frontdesk":    {ActionView, ActionCreate, ActionUpdate},
		"housekeeping": {ActionView},
		"maintenance":  {ActionView},
		ModuleReports:  {ActionView, ActionViewReports},
		ModuleUsers:    {ActionView},
	},
	role.Accountant: {
		"accounting":   {ActionView, ActionCreate, ActionUpdate, ActionApprove},
		ModuleReports:  {ActionView, ActionViewReports, ActionFinancialReports, ActionExport},
		"pos":          {ActionView},
		"revenue":      {ActionView},
		"sales_office": {ActionView},
	},
	role.Cashier: {
		"pos":        {ActionView, ActionCreate, ActionSendReceipts},
		"restaurant": {ActionView},
	},
	role.Waiter: {
		"restaurant":   {ActionView, ActionCreate, ActionUpdate},
		"pos":          {ActionView, ActionCreate},
		"room_service": {ActionView, ActionCreate},
		"rooms":        {ActionView},
	},
	role.Bartender: {
		"restaurant": {ActionView, ActionCreate, ActionUpdate},
		"pos":        {ActionView, ActionCreate},
	},
	role.InventoryManager: {
		"inventory":   {ActionView, ActionCreate, ActionUpdate, ActionDelete},
		ModuleReports: {ActionView, ActionViewReports},
		"accounting":  {ActionView},
	},
	role.Rider: {
		"delivery": {ActionView, ActionUpdate},
	},
	role.FrontDesk: {
		"frontdesk": {ActionView, ActionCreate, ActionUpdate},
		"rooms":     {ActionView, ActionUpdate},
		"concierge": {ActionView, ActionCreate},
		"pos":       {ActionView, ActionCreate},
	},
	role.HousekeepingLead: {
		"housekeeping": {ActionView, ActionCreate, ActionUpdate, ActionApprove},
		"rooms":        {ActionView, ActionUpdate},
		ModuleReports:  {ActionView},
	},
	role.HousekeepingStaff: {
		"housekeeping": {ActionView, ActionUpdate},
		"rooms":        {ActionView},
	},
	role.MaintenanceManager: {
		"maintenance": {ActionView, ActionCreate, ActionUpdate, ActionApprove},
		"rooms":       {ActionView},
		ModuleReports: {ActionView},
	},
	role.MaintenanceStaff: {
		"maintenance": {ActionView, ActionUpdate},
	},
	role.Technician: {
		"maintenance": {ActionView, ActionUpdate},
	},
	role.Engineer: {
		"maintenance": {ActionView, ActionCreate, ActionUpdate},
	},
	role.SecurityStaff: {
		"security": {ActionView, ActionCreate, ActionUpdate},
	},
}

// DefaultGrants is the seed content of the role table.
func DefaultGrants() []*Grant {
	modules := DefaultModules()
	actions := DefaultActions()
	approval := make(map[string]bool, len(actions))
	for _, a := range actions {
		approval[a.Key] = a.RequiresApproval
	}

	var out []*Grant
	for _, r := range []role.Role{role.SuperAdmin, role.Developer, role.Admin} {
		for _, m := range modules {
			for _, a := range actions {
				out = append(out, &Grant{Role: r, Module: m.Key, Action: a.Key, Granted: true})
			}
		}
	}

	for _, r := range role.All() {
		tmpl, ok := roleTemplates[r]
		if !ok {
			continue
		}
		for _, m := range modules {
			for _, a := range tmpl[m.Key] {
				out = append(out, &Grant{Role: r, Module: m.Key, Action: a, Granted: true, RequiresApproval: approval[a]})
			}
		}
	}
	return out
}
