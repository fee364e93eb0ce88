package httpapi

import (
	"net/http"

	"github.com/iotflow/connectivity/internal/apierr"
	"github.com/iotflow/connectivity/internal/credential"
	"github.com/iotflow/connectivity/internal/httpserver"
	"github.com/iotflow/connectivity/internal/obs"
)

type registerRequest struct {
	Name            string `json:"name" validate:"required,min=1,max=255"`
	DeviceType      string `json:"device_type" validate:"required,min=1,max=100"`
	Description     string `json:"description"`
	Location        string `json:"location"`
	FirmwareVersion string `json:"firmware_version"`
	HardwareVersion string `json:"hardware_version"`
}

type registerResponse struct {
	Device deviceRegisteredView `json:"device"`
}

type deviceRegisteredView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	APIKey    string `json:"api_key"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// HandleRegister implements POST /devices/register.
func (a *API) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	device, err := a.Store.RegisterDevice(r.Context(), credential.RegisterParams{
		Name:            req.Name,
		DeviceType:      req.DeviceType,
		Description:     req.Description,
		Location:        req.Location,
		FirmwareVersion: req.FirmwareVersion,
		HardwareVersion: req.HardwareVersion,
	})
	if err != nil {
		outcome := "error"
		if apiErr, ok := apierr.As(err); ok && apiErr.Kind == apierr.KindConflict {
			outcome = "conflict"
		}
		obs.DeviceRegistrationsTotal.WithLabelValues(outcome).Inc()
		httpserver.RespondAPIError(w, r, err)
		return
	}
	obs.DeviceRegistrationsTotal.WithLabelValues("success").Inc()

	httpserver.Respond(w, http.StatusCreated, registerResponse{Device: deviceRegisteredView{
		ID:        device.ID,
		Name:      device.Name,
		APIKey:    device.APIKey,
		Status:    string(device.AdminStatus),
		CreatedAt: device.CreatedAt.UTC().Format(timeRFC3339),
	}})
}

type statusResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	IsOnline     bool   `json:"is_online"`
	LastSeen     string `json:"last_seen,omitempty"`
	Status       string `json:"status"`
	StatusSource string `json:"status_source"`
}

// HandleStatus implements GET /devices/status, scoped to the authenticated
// device.
func (a *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromContext(r.Context())
	if !ok {
		httpserver.RespondAPIError(w, r, apierr.AuthRequired("missing device identity"))
		return
	}

	device, err := a.Store.GetByID(r.Context(), id.DeviceID)
	if err != nil {
		httpserver.RespondAPIError(w, r, err)
		return
	}

	live := a.Liveness.GetStatus(r.Context(), id.DeviceID)

	resp := statusResponse{
		ID:           device.ID,
		Name:         device.Name,
		IsOnline:     live.IsOnline,
		Status:       string(device.AdminStatus),
		StatusSource: live.Source,
	}
	if live.LastSeen != nil {
		resp.LastSeen = live.LastSeen.UTC().Format(timeRFC3339)
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

type heartbeatResponse struct {
	OK       bool   `json:"ok"`
	LastSeen string `json:"last_seen"`
}

// HandleHeartbeat implements POST /devices/heartbeat. Allowed for active and
// maintenance devices (not telemetry writes).
func (a *API) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromContext(r.Context())
	if !ok {
		httpserver.RespondAPIError(w, r, apierr.AuthRequired("missing device identity"))
		return
	}

	if err := a.Store.TouchLastSeen(r.Context(), id.DeviceID); err != nil {
		httpserver.RespondAPIError(w, r, err)
		return
	}

	seenAt := nowUTC()
	a.Liveness.SetOnline(r.Context(), id.DeviceID, a.Pipeline.HeartbeatTTL(), seenAt)

	httpserver.Respond(w, http.StatusOK, heartbeatResponse{OK: true, LastSeen: seenAt.Format(timeRFC3339)})
}

type configResponse struct {
	Location        string `json:"location"`
	FirmwareVersion string `json:"firmware_version"`
	Description     string `json:"description"`
}

// HandleGetConfig implements GET /devices/config.
func (a *API) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromContext(r.Context())
	if !ok {
		httpserver.RespondAPIError(w, r, apierr.AuthRequired("missing device identity"))
		return
	}

	device, err := a.Store.GetByID(r.Context(), id.DeviceID)
	if err != nil {
		httpserver.RespondAPIError(w, r, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, configResponse{
		Location:        device.Location,
		FirmwareVersion: device.FirmwareVersion,
		Description:     device.Description,
	})
}

type configUpdateRequest struct {
	Location        *string `json:"location"`
	FirmwareVersion *string `json:"firmware_version"`
	Description     *string `json:"description"`
}

// HandlePutConfig implements PUT /devices/config.
func (a *API) HandlePutConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromContext(r.Context())
	if !ok {
		httpserver.RespondAPIError(w, r, apierr.AuthRequired("missing device identity"))
		return
	}

	var req configUpdateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	device, err := a.Store.UpdateConfig(r.Context(), id.DeviceID, credential.ConfigUpdate{
		Location:        req.Location,
		FirmwareVersion: req.FirmwareVersion,
		Description:     req.Description,
	})
	if err != nil {
		httpserver.RespondAPIError(w, r, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, configResponse{
		Location:        device.Location,
		FirmwareVersion: device.FirmwareVersion,
		Description:     device.Description,
	})
}

type mqttCredentialsResponse struct {
	BrokerHost string `json:"broker_host"`
	BrokerPort int    `json:"broker_port"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

// HandleMQTTCredentials implements GET /devices/mqtt-credentials. Password is
// the device's own api_key — the MQTT broker authenticates devices the same
// way the HTTP ingress does.
func (a *API) HandleMQTTCredentials(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromContext(r.Context())
	if !ok {
		httpserver.RespondAPIError(w, r, apierr.AuthRequired("missing device identity"))
		return
	}

	device, err := a.Store.GetByID(r.Context(), id.DeviceID)
	if err != nil {
		httpserver.RespondAPIError(w, r, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, mqttCredentialsResponse{
		BrokerHost: a.Config.MQTTBrokerHost,
		BrokerPort: a.Config.MQTTBrokerPort,
		Username:   device.Name,
		Password:   device.APIKey,
	})
}
