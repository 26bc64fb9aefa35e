package internal

import "expvar"

var (
	requestsTotal     = expvar.NewMap("herald_requests_total")
	parseErrors       = expvar.NewMap("herald_parse_errors_total")
	signatureFailures = expvar.NewInt("herald_signature_failures_total")
	notificationsSent = expvar.NewMap("herald_notifications_total")
	sendErrors        = expvar.NewInt("herald_send_errors_total")
	unfurlsSubmitted  = expvar.NewInt("herald_unfurls_total")
)

func IncRequest(surface string) {
	requestsTotal.Add(surface, 1)
}

func IncParseError(surface string) {
	parseErrors.Add(surface, 1)
}

func IncSignatureFailure() {
	signatureFailures.Add(1)
}

func IncNotification(kind string) {
	notificationsSent.Add(kind, 1)
}

func IncSendError() {
	sendErrors.Add(1)
}

func IncUnfurl() {
	unfurlsSubmitted.Add(1)
}
