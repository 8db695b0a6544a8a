package handlers

import (
	"html/template"
	"net/http"
)

const swaggerUIVersion = "5.10.0"

var swaggerPage = template.Must(template.New("swagger").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@{{.Version}}/swagger-ui.css">
    <style>
        html { box-sizing: border-box; overflow-y: scroll; }
        *, *:before, *:after { box-sizing: inherit; }
        body { margin: 0; padding: 0; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@{{.Version}}/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({
                url: "{{.SpecURL}}",
                dom_id: "#swagger-ui",
                deepLinking: true,
                tryItOutEnabled: true,
                supportedSubmitMethods: ["get", "post"]
            });
        };
    </script>
</body>
</html>`))

type swaggerPageData struct {
	Title   string
	Version string
	SpecURL string
}

// SwaggerUI serves the interactive documentation for the operator API.
func SwaggerUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := swaggerPage.Execute(w, swaggerPageData{
		Title:   "VMGD Scraper API",
		Version: swaggerUIVersion,
		SpecURL: "/api/docs/openapi.json",
	})
	if err != nil {
		http.Error(w, "failed to render documentation", http.StatusInternalServerError)
	}
}
