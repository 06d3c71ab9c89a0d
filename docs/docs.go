// Package docs registers the OpenAPI document served at /swagger.
// Regenerate with `swag init -g cmd/server/main.go` after changing handler
// annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/insights": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["insights"],
                "summary": "List insights",
                "parameters": [
                    {"type": "integer", "description": "Page (1-based)", "name": "page", "in": "query"},
                    {"type": "integer", "description": "Page size", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListInsightsResponse"}},
                    "304": {"description": "Not Modified"},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/insights/generate": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["insights"],
                "summary": "Generate an insight for a period",
                "parameters": [
                    {"description": "Period", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.GenerateInsightRequest"}},
                    {"type": "string", "description": "Idempotency key", "name": "Idempotency-Key", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Insight"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/insights/latest": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["insights"],
                "summary": "Most recent insight",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Insight"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/insights/{id}/export": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["text/plain"],
                "tags": ["insights"],
                "summary": "Export an insight",
                "parameters": [
                    {"type": "string", "description": "Insight ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "text|pdf", "name": "format", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "string"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "501": {"description": "Not Implemented", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/insights/{id}": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["insights"],
                "summary": "Delete an insight",
                "parameters": [
                    {"type": "string", "description": "Insight ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/insights/cache": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["insights"],
                "summary": "Drop the caller's cached insights",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ClearCacheResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.GenerateInsightRequest": {
            "type": "object",
            "required": ["start_date", "end_date"],
            "properties": {
                "start_date": {"type": "string", "example": "2024-01-01"},
                "end_date": {"type": "string", "example": "2024-01-31"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string", "example": "insight not found"}
            }
        },
        "handlers.Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"},
                "has_next": {"type": "boolean"}
            }
        },
        "handlers.ListInsightsResponse": {
            "type": "object",
            "properties": {
                "insights": {"type": "array", "items": {"$ref": "#/definitions/domain.Insight"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "handlers.ClearCacheResponse": {
            "type": "object",
            "properties": {"cleared": {"type": "integer", "example": 2}}
        },
        "domain.CategoryInsight": {
            "type": "object",
            "properties": {
                "category": {"type": "string"},
                "total_spent": {"type": "number"},
                "percentage_of_total": {"type": "number"},
                "insight": {"type": "string"}
            }
        },
        "domain.SpendingSpike": {
            "type": "object",
            "properties": {
                "date": {"type": "string"},
                "amount": {"type": "number"},
                "category": {"type": "string"},
                "description": {"type": "string"}
            }
        },
        "domain.Projections": {
            "type": "object",
            "properties": {
                "next_week": {"type": "number"},
                "next_month": {"type": "number"},
                "confidence": {"type": "string"},
                "explanation": {"type": "string"}
            }
        },
        "domain.Insight": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "user_id": {"type": "string"},
                "period_start": {"type": "string"},
                "period_end": {"type": "string"},
                "monthly_summary": {"type": "string"},
                "category_insights": {"type": "array", "items": {"$ref": "#/definitions/domain.CategoryInsight"}},
                "spending_spikes": {"type": "array", "items": {"$ref": "#/definitions/domain.SpendingSpike"}},
                "recommendations": {"type": "array", "items": {"type": "string"}},
                "projections": {"$ref": "#/definitions/domain.Projections"},
                "placeholder": {"type": "boolean"},
                "generated_at": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Insights API",
	Description:      "Generates, caches and exports monthly spending insights.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
