package observability

const (
	MUsecaseRequests         MetricKey = "usecase_requests_total"
	MUsecaseDuration         MetricKey = "usecase_duration_seconds"
	MHTTPRequests            MetricKey = "http_requests_total"
	MHTTPRequestDuration     MetricKey = "http_request_duration_seconds"
	MExternalRequests        MetricKey = "external_requests_total"
	MExternalRequestDuration MetricKey = "external_request_duration_seconds"

	MCartSweeps          MetricKey = "cart_sweeps_total"
	MCartSessionsExpired MetricKey = "cart_sessions_expired_total"
	MCartUnitsReleased   MetricKey = "cart_units_released_total"
)
