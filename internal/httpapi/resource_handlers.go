package httpapi

import (
	"net/http"

	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/gate"
	"gatehouse.dev/internal/ids"
)

// Sample payloads served behind permission checks. The kernel owns no
// business data; these exist so the decision API can be exercised end to end.
var sampleResources = map[string][]map[string]any{
	"articles": {
		{"id": 1, "title": "Getting started", "author": "Editorial"},
		{"id": 2, "title": "Release notes", "author": "Engineering"},
	},
	"documents": {
		{"id": 1, "title": "Project charter", "type": "PDF"},
		{"id": 2, "title": "Supply agreement", "type": "DOCX"},
	},
	"reports": {
		{"id": 1, "title": "Quarterly report", "status": "completed"},
		{"id": 2, "title": "Sales pipeline", "status": "in_progress"},
	},
}

// resourceHandler guards /api/resources/{type} with the (type, action) permission.
func (a *API) resourceHandler(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resource := r.PathValue("type")
		chain := gate.NewChain(a.gate.Authenticated(),
			a.gate.RequireAs("perm:resources:"+action, auth.PermissionRequirement(resource, action)))
		a.guarded(chain, func(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
			switch action {
			case "create":
				var item map[string]any
				if err := decodeJSON(w, r, &item); err != nil {
					a.fail(w, r, err)
					return
				}
				if item == nil {
					item = map[string]any{}
				}
				item["id"] = ids.New()
				a.auditEvent(r, "resource.create", map[string]any{"resource_type": resource})
				writeJSON(w, http.StatusCreated, map[string]any{
					"resource_type": resource,
					"action":        action,
					"data":          item,
				})
			default:
				data := sampleResources[resource]
				if data == nil {
					data = []map[string]any{}
				}
				writeJSON(w, http.StatusOK, map[string]any{
					"resource_type": resource,
					"action":        action,
					"data":          data,
				})
			}
		}).ServeHTTP(w, r)
	}
}
