package router

import (
	"os"
	"path/filepath"

	"birthday-wall/backend/pkg/validator"
)

// AddOpenAPIValidation validates requests against the schema at schemaPath
// and serves the schema under /api/docs. A missing or invalid schema is
// logged and skipped.
func (r *Router) AddOpenAPIValidation(schemaPath string) {
	if !fileExists(schemaPath) {
		r.Logger.Warn("OpenAPI schema file not found, skipping validation", "path", schemaPath)
		return
	}

	v, err := validator.NewOpenAPIValidator(schemaPath)
	if err != nil {
		r.Logger.LogError(err, "Failed to initialize OpenAPI validator")
		return
	}

	r.Engine.Use(v.Middleware())
	r.Logger.Info("OpenAPI validation enabled", "schema", schemaPath, "operations", v.Operations())

	r.Engine.StaticFile("/api/docs/"+filepath.Base(schemaPath), schemaPath)
}

// fileExists checks if a file exists and is not a directory
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
