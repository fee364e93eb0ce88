package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iotflow/connectivity/internal/apierr"
	"github.com/iotflow/connectivity/internal/httpserver"
	"github.com/iotflow/connectivity/internal/identity"
	"github.com/iotflow/connectivity/internal/pipeline"
	"github.com/iotflow/connectivity/internal/timeseries"
)

type telemetrySubmitRequest struct {
	Data      map[string]any    `json:"data" validate:"required"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp *time.Time        `json:"timestamp"`
}

type partialWriteResponse struct {
	Partial  bool     `json:"partial"`
	Rejected []string `json:"rejected"`
}

// HandleTelemetrySubmit implements POST /devices/telemetry. Requires the
// authenticated device to be "active" — "maintenance" devices may heartbeat
// and read config but not publish data.
func (a *API) HandleTelemetrySubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromContext(r.Context())
	if !ok {
		httpserver.RespondAPIError(w, r, apierr.AuthRequired("missing device identity"))
		return
	}
	if err := identity.RequireActive(id); err != nil {
		httpserver.RespondAPIError(w, r, err)
		return
	}

	var req telemetrySubmitRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	env := pipeline.Envelope{
		DeviceID:  id.DeviceID,
		Timestamp: req.Timestamp,
		Data:      req.Data,
		Metadata:  req.Metadata,
	}

	outcome, err := a.Pipeline.Submit(r.Context(), id.DeviceID, env)
	if err != nil {
		if ae, ok := apierr.As(err); ok && ae.Kind == apierr.KindPartialWrite {
			httpserver.Respond(w, http.StatusMultiStatus, partialWriteResponse{Partial: true, Rejected: outcome.RejectedFields})
			return
		}
		httpserver.RespondAPIError(w, r, err)
		return
	}

	httpserver.Respond(w, http.StatusAccepted, map[string]any{"accepted": len(outcome.Accepted)})
}

type telemetryPointView struct {
	Measurement string `json:"measurement"`
	Value       any    `json:"value"`
	Timestamp   string `json:"timestamp"`
}

// HandleTelemetryLatest implements GET /telemetry/{id}/latest.
func (a *API) HandleTelemetryLatest(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := pathDeviceID(w, r)
	if !ok {
		return
	}
	measurement := r.URL.Query().Get("measurement")

	point, err := a.Timeseries.QueryLatest(r.Context(), deviceID, measurement)
	if err != nil {
		httpserver.RespondAPIError(w, r, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, telemetryPointView{
		Measurement: point.Measurement,
		Value:       point.Value,
		Timestamp:   point.Timestamp.UTC().Format(timeRFC3339),
	})
}

// HandleTelemetryRange implements GET /telemetry/{id}.
func (a *API) HandleTelemetryRange(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := pathDeviceID(w, r)
	if !ok {
		return
	}

	from, to, err := parseRange(r)
	if err != nil {
		httpserver.RespondAPIError(w, r, apierr.Validation("%s", err.Error()))
		return
	}

	measurement := r.URL.Query().Get("measurement")
	limit := 1000
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, parseErr := strconv.Atoi(v); parseErr == nil && n > 0 && n <= 10000 {
			limit = n
		}
	}

	it, err := a.Timeseries.QueryRange(r.Context(), deviceID, from, to, measurement, limit)
	if err != nil {
		httpserver.RespondAPIError(w, r, err)
		return
	}
	defer it.Close()

	points := make([]telemetryPointView, 0, limit)
	for it.Next() {
		p := it.Point()
		points = append(points, telemetryPointView{
			Measurement: p.Measurement,
			Value:       p.Value,
			Timestamp:   p.Timestamp.UTC().Format(timeRFC3339),
		})
	}
	if err := it.Err(); err != nil {
		httpserver.RespondAPIError(w, r, apierr.Internal(err))
		return
	}

	httpserver.Respond(w, http.StatusOK, points)
}

type aggregateBucketView struct {
	BucketStart string  `json:"bucket_start"`
	Value       float64 `json:"value"`
}

// HandleTelemetryAggregated implements
// GET /telemetry/{id}/aggregated?window=&from=&to=&fn=.
func (a *API) HandleTelemetryAggregated(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := pathDeviceID(w, r)
	if !ok {
		return
	}

	from, to, err := parseRange(r)
	if err != nil {
		httpserver.RespondAPIError(w, r, apierr.Validation("%s", err.Error()))
		return
	}

	measurement := r.URL.Query().Get("measurement")
	if measurement == "" {
		httpserver.RespondAPIError(w, r, apierr.Validation("measurement query parameter is required"))
		return
	}

	window, err := time.ParseDuration(r.URL.Query().Get("window"))
	if err != nil {
		httpserver.RespondAPIError(w, r, apierr.Validation("invalid window parameter: %s", err.Error()))
		return
	}

	fn := timeseries.AggregateFn(r.URL.Query().Get("fn"))
	if fn == "" {
		fn = timeseries.AggMean
	}

	buckets, err := a.Timeseries.QueryAggregate(r.Context(), deviceID, measurement, from, to, window, fn)
	if err != nil {
		httpserver.RespondAPIError(w, r, err)
		return
	}

	out := make([]aggregateBucketView, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, aggregateBucketView{BucketStart: b.BucketStart.UTC().Format(timeRFC3339), Value: b.Value})
	}
	httpserver.Respond(w, http.StatusOK, out)
}

// pathDeviceID parses the {id} path parameter and, when the request carries
// a resolved device identity (as opposed to an admin bearer token), enforces
// that a device may only query its own telemetry.
func pathDeviceID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httpserver.RespondAPIError(w, r, apierr.Validation("invalid device id %q", raw))
		return 0, false
	}

	if callerID, ok := identityFromContext(r.Context()); ok && callerID.DeviceID != id {
		httpserver.RespondAPIError(w, r, apierr.AuthFailed("device may not query another device's telemetry"))
		return 0, false
	}

	return id, true
}

func parseRange(r *http.Request) (from, to time.Time, err error) {
	to = nowUTC()
	from = to.Add(-24 * time.Hour)

	if v := r.URL.Query().Get("from"); v != "" {
		from, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, err
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		to, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, err
		}
	}
	return from, to, nil
}
