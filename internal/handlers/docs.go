package handlers

import (
	"encoding/json"
	"net/http"

	"vmgd-scraper/internal/models"
)

func kindParameter() map[string]interface{} {
	kinds := make([]string, len(models.AllSessionKinds))
	for i, k := range models.AllSessionKinds {
		kinds[i] = string(k)
	}
	return map[string]interface{}{
		"name":        "kind",
		"in":          "path",
		"description": "Session kind",
		"required":    true,
		"schema":      map[string]interface{}{"type": "string", "enum": kinds},
	}
}

func jsonResponse(description string, schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": schema},
		},
	}
}

func ref(name string) map[string]interface{} {
	return map[string]interface{}{"$ref": "#/components/schemas/" + name}
}

func errorResponse(description string) map[string]interface{} {
	return jsonResponse(description, ref("ErrorResponse"))
}

// OpenAPISpec serves the OpenAPI 3.0 document for the operator API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "VMGD Scraper API",
			"description": "Runs VMGD scraping sessions and serves the forecasts, warnings and media they stored",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/api/sessions": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "List session kinds",
					"responses": map[string]interface{}{
						"200": jsonResponse("Runnable session kinds", map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"data":  map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
								"total": map[string]string{"type": "integer"},
							},
						}),
					},
				},
			},
			"/api/sessions/run": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Run several sessions",
					"description": "Runs the listed session kinds in parallel, or every kind when none are given",
					"parameters": []map[string]interface{}{
						{
							"name":        "kinds",
							"in":          "query",
							"description": "Comma-separated session kinds",
							"required":    false,
							"schema":      map[string]string{"type": "string"},
						},
					},
					"responses": map[string]interface{}{
						"200": jsonResponse("Every session completed or was skipped", ref("RunSummary")),
						"400": errorResponse("Unknown session kind"),
						"500": jsonResponse("At least one session failed", ref("RunSummary")),
					},
				},
			},
			"/api/sessions/{kind}/run": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":    "Run one session",
					"parameters": []map[string]interface{}{kindParameter()},
					"responses": map[string]interface{}{
						"200": jsonResponse("Session completed or was skipped", ref("SessionResult")),
						"404": errorResponse("Unknown session kind"),
						"500": jsonResponse("Session failed", ref("SessionResult")),
					},
				},
			},
			"/api/sessions/{kind}/latest": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Latest completed session",
					"description": "Returns the latest completed session of kind with the records it stored",
					"parameters":  []map[string]interface{}{kindParameter()},
					"responses": map[string]interface{}{
						"200": jsonResponse("Session snapshot", map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"session":   map[string]string{"type": "object"},
								"forecasts": map[string]interface{}{"type": "array", "items": map[string]string{"type": "object"}},
								"warnings":  map[string]interface{}{"type": "array", "items": map[string]string{"type": "object"}},
								"media":     map[string]interface{}{"type": "array", "items": map[string]string{"type": "object"}},
							},
						}),
						"404": errorResponse("Unknown kind or no completed session"),
					},
				},
			},
			"/api/page-errors": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Recorded page errors",
					"description": "Deduplicated page failures, most recently seen first",
					"parameters": []map[string]interface{}{
						{
							"name":        "limit",
							"in":          "query",
							"description": "Maximum rows (default: 50, max: 500)",
							"required":    false,
							"schema":      map[string]interface{}{"type": "integer", "default": defaultPageErrorLimit},
						},
					},
					"responses": map[string]interface{}{
						"200": jsonResponse("Page errors", map[string]interface{}{"type": "object"}),
						"400": errorResponse("Invalid limit"),
					},
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Health check",
					"responses": map[string]interface{}{
						"200": jsonResponse("Service and database are reachable", map[string]interface{}{"type": "object"}),
						"503": jsonResponse("Database is unreachable", map[string]interface{}{"type": "object"}),
					},
				},
			},
			"/metrics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Prometheus metrics",
					"description": "Prometheus metrics endpoint for monitoring",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Prometheus metrics in text format",
							"content": map[string]interface{}{
								"text/plain": map[string]interface{}{
									"schema": map[string]string{"type": "string"},
								},
							},
						},
					},
				},
			},
		},
		"components": map[string]interface{}{
			"schemas": map[string]interface{}{
				"ErrorResponse": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"error":   map[string]string{"type": "string"},
						"message": map[string]string{"type": "string"},
						"code":    map[string]string{"type": "integer"},
					},
				},
				"SessionResult": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"session_id":    map[string]string{"type": "integer"},
						"kind":          map[string]string{"type": "string"},
						"outcome":       map[string]interface{}{"type": "string", "enum": []string{"completed", "failed", "skipped"}},
						"state":         map[string]string{"type": "string"},
						"failed_during": map[string]string{"type": "string"},
						"code":          map[string]string{"type": "string"},
						"reason":        map[string]string{"type": "string"},
						"pages":         map[string]string{"type": "integer"},
						"records":       map[string]string{"type": "integer"},
						"duration_ns":   map[string]string{"type": "integer"},
					},
				},
				"RunSummary": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"results":   map[string]interface{}{"type": "array", "items": ref("SessionResult")},
						"completed": map[string]string{"type": "integer"},
						"failed":    map[string]string{"type": "integer"},
						"skipped":   map[string]string{"type": "integer"},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
