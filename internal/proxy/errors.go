package proxy

import (
	"net/http"

	"github.com/watkajtys/earthquake-sub007/internal/domain"
)

// ErrorSource identifies the proxy in error payloads.
const ErrorSource = "usgs-proxy-handler"

// ErrorBody is the JSON payload of a failed proxy request.
type ErrorBody struct {
	Message        string `json:"message"`
	Source         string `json:"source,omitempty"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
}

// ErrorResponse maps a Serve error to its HTTP status and payload.
func ErrorResponse(err error) (int, ErrorBody) {
	switch domain.KindOf(err) {
	case domain.KindConfiguration, domain.KindValidation:
		return http.StatusBadRequest, ErrorBody{Message: domain.MessageOf(err)}
	case domain.KindUpstreamStatus:
		status := domain.HTTPStatus(err)
		return status, ErrorBody{Message: domain.MessageOf(err), Source: ErrorSource, UpstreamStatus: status}
	default:
		return http.StatusInternalServerError, ErrorBody{
			Message: "USGS API fetch failed: " + domain.MessageOf(err),
			Source:  ErrorSource,
		}
	}
}
