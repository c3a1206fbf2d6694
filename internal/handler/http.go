package handler

import (
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"
)

// ServeHTTP serves the same routes as HandleRequest over net/http, for local
// runs outside API Gateway.
func (h *StationsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	params := make(map[string]string, len(r.URL.Query()))
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	response, err := h.HandleRequest(r.Context(), events.APIGatewayProxyRequest{
		HTTPMethod:            r.Method,
		Path:                  r.URL.Path,
		QueryStringParameters: params,
	})
	if err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(response.StatusCode)
	if _, err := w.Write([]byte(response.Body)); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
