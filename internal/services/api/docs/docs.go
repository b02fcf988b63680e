// Package docs holds the OpenAPI document served by the swagger UI
package docs

import "github.com/swaggo/swag/v2"

const docTemplate = `{
    "openapi": "3.0.3",
    "info": {
        "title": "{{.Title}}",
        "description": "{{escape .Description}}",
        "version": "{{.Version}}"
    },
    "paths": {
        "/kpi/catalog": {"get": {"tags": ["kpi"], "summary": "Dimensions, KPIs and rules available to queries", "responses": {"200": {"description": "ok"}}}},
        "/kpi/fetch": {"post": {"tags": ["kpi"], "summary": "Per segment KPIs for one month or the full history", "requestBody": {"required": true, "content": {"application/json": {"schema": {"$ref": "#/components/schemas/FetchInput"}}}}, "responses": {"200": {"description": "ok"}, "502": {"description": "backend failure"}, "504": {"description": "backend timeout"}}}},
        "/kpi/diff": {"post": {"tags": ["kpi"], "summary": "Month over month change per segment", "requestBody": {"required": true, "content": {"application/json": {"schema": {"$ref": "#/components/schemas/DiffInput"}}}}, "responses": {"200": {"description": "ok"}, "502": {"description": "backend failure"}, "504": {"description": "backend timeout"}}}},
        "/kpi/flag": {"post": {"tags": ["kpi"], "summary": "Segments matching a named rule", "requestBody": {"required": true, "content": {"application/json": {"schema": {"$ref": "#/components/schemas/FlagInput"}}}}, "responses": {"200": {"description": "ok"}}}},
        "/kpi/rank": {"post": {"tags": ["kpi"], "summary": "Country and device segments by conversion rate", "requestBody": {"required": true, "content": {"application/json": {"schema": {"$ref": "#/components/schemas/RankInput"}}}}, "responses": {"200": {"description": "ok"}}}},
        "/kpi/runs": {"get": {"tags": ["kpi"], "summary": "Recent query runs, newest first", "parameters": [{"name": "limit", "in": "query", "schema": {"type": "integer", "minimum": 1, "maximum": 500}}], "responses": {"200": {"description": "ok"}}}},
        "/meta/health": {"get": {"tags": ["meta"], "summary": "Health check", "responses": {"200": {"description": "ok"}}}},
        "/meta/ready": {"get": {"tags": ["meta"], "summary": "Readiness probe with dependency checks", "responses": {"200": {"description": "ok"}, "503": {"description": "not ready"}}}},
        "/meta/version": {"get": {"tags": ["meta"], "summary": "Build and version info", "responses": {"200": {"description": "ok"}}}}
    },
    "components": {
        "schemas": {
            "FetchInput": {"type": "object", "required": ["dimensions"], "properties": {"dimensions": {"type": "array", "items": {"type": "string"}, "example": ["device_type"]}, "month": {"type": "string", "example": "2017-01"}, "context": {"type": "string", "example": "analytics"}}},
            "DiffInput": {"type": "object", "required": ["month_a", "month_b", "dimensions"], "properties": {"month_a": {"type": "string", "example": "2016-12"}, "month_b": {"type": "string", "example": "2017-01"}, "dimensions": {"type": "array", "items": {"type": "string"}}, "context": {"type": "string"}}},
            "FlagInput": {"type": "object", "required": ["rule"], "properties": {"rule": {"type": "string", "enum": ["traffic", "engagement", "conversion"]}, "dimensions": {"type": "array", "items": {"type": "string"}}, "context": {"type": "string"}}},
            "RankInput": {"type": "object", "properties": {"month": {"type": "string", "example": "2017-01"}, "context": {"type": "string"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Title:            "adperf KPI API",
	Description:      "Segment level KPIs over Google Analytics session exports.",
	InfoInstanceName: "api",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
