package http_api

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	s.router.GET("/", s.health)
	s.router.GET("/health", s.health)
	s.router.GET("/metrics", s.metricsHandler())

	api := s.router.Group("/api/v1")
	api.GET("/status", s.status)
	api.GET("/tokens/:address/report", s.tokenReport)
}
