package constants

// Route constants shared by the router and redirects.
const (
	ConsoleRoute = "/console"
	ApiRoute     = "/api"
	MetricsRoute = "/metrics"
)
