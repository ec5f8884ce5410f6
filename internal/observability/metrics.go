package observability

const (
	MUsecaseRequests         MetricKey = "usecase_requests_total"
	MUsecaseDuration         MetricKey = "usecase_duration_seconds"
	MHTTPRequests            MetricKey = "http_requests_total"
	MHTTPRequestDuration     MetricKey = "http_request_duration_seconds"
	MExternalRequests        MetricKey = "external_requests_total"
	MExternalRequestDuration MetricKey = "external_request_duration_seconds"
	MEventsHandled           MetricKey = "events_handled_total"
	MEventHandlerDuration    MetricKey = "event_handler_duration_seconds"
	MNegativeStock           MetricKey = "inventory_negative_stock_total"
	MLowStockAlerts          MetricKey = "inventory_low_stock_alerts_total"
	MLowStockItems           MetricKey = "inventory_low_stock_items"
)
