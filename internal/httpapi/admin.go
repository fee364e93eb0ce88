package httpapi

import (
	"net/http"

	"github.com/iotflow/connectivity/internal/apierr"
	"github.com/iotflow/connectivity/internal/credential"
	"github.com/iotflow/connectivity/internal/httpserver"
)

type deviceAdminView struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	DeviceType      string `json:"device_type"`
	Description     string `json:"description"`
	Location        string `json:"location"`
	FirmwareVersion string `json:"firmware_version"`
	HardwareVersion string `json:"hardware_version"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
	LastSeen        string `json:"last_seen,omitempty"`
}

func toAdminView(d credential.Device) deviceAdminView {
	v := deviceAdminView{
		ID:              d.ID,
		Name:            d.Name,
		DeviceType:      d.DeviceType,
		Description:     d.Description,
		Location:        d.Location,
		FirmwareVersion: d.FirmwareVersion,
		HardwareVersion: d.HardwareVersion,
		Status:          string(d.AdminStatus),
		CreatedAt:       d.CreatedAt.UTC().Format(timeRFC3339),
		UpdatedAt:       d.UpdatedAt.UTC().Format(timeRFC3339),
	}
	if d.LastSeen != nil {
		v.LastSeen = d.LastSeen.UTC().Format(timeRFC3339)
	}
	return v
}

// HandleAdminList implements the admin device list endpoint.
func (a *API) HandleAdminList(w http.ResponseWriter, r *http.Request) {
	page := httpserver.ParsePage(r)

	devices, total, err := a.Store.List(r.Context(), page.Offset, page.Limit)
	if err != nil {
		httpserver.RespondAPIError(w, r, err)
		return
	}

	views := make([]deviceAdminView, 0, len(devices))
	for _, d := range devices {
		views = append(views, toAdminView(d))
	}

	httpserver.Respond(w, http.StatusOK, httpserver.PagedResponse{
		Items:  views,
		Total:  total,
		Offset: page.Offset,
		Limit:  page.Limit,
	})
}

// HandleAdminGet implements the admin get-by-id endpoint.
func (a *API) HandleAdminGet(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := pathDeviceID(w, r)
	if !ok {
		return
	}
	device, err := a.Store.GetByID(r.Context(), deviceID)
	if err != nil {
		httpserver.RespondAPIError(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, toAdminView(device))
}

// HandleAdminUpdate implements the admin config-update endpoint — the same
// fields a device may update about itself, settable by an operator too.
func (a *API) HandleAdminUpdate(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := pathDeviceID(w, r)
	if !ok {
		return
	}

	var req configUpdateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	device, err := a.Store.UpdateConfig(r.Context(), deviceID, credential.ConfigUpdate{
		Location:        req.Location,
		FirmwareVersion: req.FirmwareVersion,
		Description:     req.Description,
	})
	if err != nil {
		httpserver.RespondAPIError(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, toAdminView(device))
}

// HandleAdminDelete implements the admin delete endpoint. It invalidates any
// cached auth entry and clears liveness state for the device, since a
// deleted device's api_key must stop resolving immediately.
func (a *API) HandleAdminDelete(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := pathDeviceID(w, r)
	if !ok {
		return
	}

	device, err := a.Store.GetByID(r.Context(), deviceID)
	if err != nil {
		httpserver.RespondAPIError(w, r, err)
		return
	}

	if err := a.Store.Delete(r.Context(), deviceID); err != nil {
		httpserver.RespondAPIError(w, r, err)
		return
	}

	a.Auth.InvalidateDevice(r.Context(), device.APIKey)
	a.Liveness.ClearStatus(r.Context(), deviceID)

	if err := a.Timeseries.DeleteDevice(r.Context(), deviceID); err != nil {
		a.Logger.Warn("admin delete: time-series cleanup failed", "device_id", deviceID, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

type statusPatchRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive maintenance"`
}

// HandleAdminStatusPatch implements the admin status-transition endpoint.
func (a *API) HandleAdminStatusPatch(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := pathDeviceID(w, r)
	if !ok {
		return
	}

	var req statusPatchRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	device, err := a.Store.UpdateStatus(r.Context(), deviceID, credential.AdminStatus(req.Status))
	if err != nil {
		httpserver.RespondAPIError(w, r, err)
		return
	}

	a.Auth.InvalidateDevice(r.Context(), device.APIKey)
	if device.AdminStatus != credential.StatusActive {
		a.Liveness.ClearStatus(r.Context(), deviceID)
	}

	httpserver.Respond(w, http.StatusOK, toAdminView(device))
}

type statsResponse struct {
	TotalDevices  int   `json:"total_devices"`
	OnlineDevices int64 `json:"online_devices"`
	CacheReachable bool `json:"cache_reachable"`
}

// HandleAdminStats implements the admin stats endpoint.
func (a *API) HandleAdminStats(w http.ResponseWriter, r *http.Request) {
	_, total, err := a.Store.List(r.Context(), 0, 1)
	if err != nil {
		httpserver.RespondAPIError(w, r, err)
		return
	}
	cacheStats := a.Liveness.Stats(r.Context())

	httpserver.Respond(w, http.StatusOK, statsResponse{
		TotalDevices:   total,
		OnlineDevices:  cacheStats.OnlineDevices,
		CacheReachable: cacheStats.Reachable,
	})
}

// HandleAdminCacheInspect implements the admin cache-inspection endpoint for
// a single device.
func (a *API) HandleAdminCacheInspect(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := pathDeviceID(w, r)
	if !ok {
		return
	}
	status := a.Liveness.GetStatus(r.Context(), deviceID)

	resp := map[string]any{
		"is_online": status.IsOnline,
		"source":    status.Source,
	}
	if status.LastSeen != nil {
		resp["last_seen"] = status.LastSeen.UTC().Format(timeRFC3339)
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

// HandleAdminCacheFlush implements the admin cache-flush endpoint, clearing
// every liveness/rate-limit key IoTFlow owns.
func (a *API) HandleAdminCacheFlush(w http.ResponseWriter, r *http.Request) {
	if err := a.Liveness.ClearAll(r.Context()); err != nil {
		httpserver.RespondAPIError(w, r, apierr.Internal(err))
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]bool{"flushed": true})
}
