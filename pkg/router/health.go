package router

// setupHealthRoutes registers health check endpoints
func (r *Router) setupHealthRoutes() {
	handler := r.Container.Health.Handler()

	// Both paths are polled by existing monitors
	r.Engine.GET("/health", handler)
	r.Engine.GET("/api/health", handler)
}
