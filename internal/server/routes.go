package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.deps.Gatherer != nil {
		s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Post("/v1/score", s.handleScore)
	s.router.Post("/v1/scripts/{name}/score", s.handleScriptScore)
	s.router.Get("/v1/documents/{id}/score", s.handleDocumentScore)
}
