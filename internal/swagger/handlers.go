package swagger

import (
	"encoding/json"
	"net/http"

	apispec "github.com/campusops/portal/api"
	httpSwagger "github.com/swaggo/http-swagger"
)

const SpecPath = "/openapi.json"

// OpenAPI spec as JSON
func ServeSwaggerJSON(w http.ResponseWriter, r *http.Request) {
	spec, err := apispec.GetSwagger()
	if err != nil {
		http.Error(w, "Failed to load OpenAPI spec", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*") // CORS off for docs
	json.NewEncoder(w).Encode(spec)
}

// UI serves Swagger UI pointed at SpecPath. Mount it under /swagger/.
func UI() http.HandlerFunc {
	return httpSwagger.Handler(
		httpSwagger.URL(SpecPath),
		httpSwagger.DocExpansion("list"),
		httpSwagger.PersistAuthorization(true),
	)
}
