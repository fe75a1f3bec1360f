package gateway

import "time"

type MetricsRecorder interface {
	GatewayRequest(operation string, started time.Time, err error)
}
