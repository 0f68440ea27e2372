package httpx

import (
	"net/http"

	"github.com/jcmexdev/saga-orchestrator/internal/pkg/httpx"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/metrics"
)

func NewRouter(handler *Handler, m *metrics.Metrics) http.Handler {
	r := httpx.NewRouter(m)
	r.Post("/orders", handler.CreateOrder)
	return r
}
