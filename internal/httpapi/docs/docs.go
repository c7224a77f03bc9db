// Package docs registers the OpenAPI document served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/images": {
            "post": {
                "summary": "Register an image or re-enter it into the viewport",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/types.RegisterRequest"}}],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/types.ImageState"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Closed", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/images/{id}": {
            "get": {
                "summary": "Current loading state",
                "produces": ["application/json"],
                "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ImageState"}}}
            },
            "delete": {
                "summary": "Cancel pending work for the image",
                "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/images/{id}/leave": {
            "post": {
                "summary": "Mark the image as outside the viewport",
                "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/images/{id}/full": {
            "post": {
                "summary": "Request the full-resolution image immediately",
                "produces": ["application/json"],
                "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/types.ImageState"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/images/{id}/events": {
            "get": {
                "summary": "Server-sent stream of state changes",
                "produces": ["text/event-stream"],
                "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/scale": {
            "post": {
                "summary": "Report the canvas zoom factor",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/types.ScaleRequest"}}],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/types.ScaleResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/blob": {
            "get": {
                "summary": "Cached bytes for a URL",
                "parameters": [{"in": "query", "name": "url", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not cached", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "summary": "Loader status",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}}
            }
        },
        "/maintenance/release": {
            "post": {
                "summary": "Downgrade images that left the viewport long ago",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ReleaseResponse"}}}
            }
        },
        "/clear": {
            "post": {
                "summary": "Drop all tasks and cached data",
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/healthz": {
            "get": {
                "summary": "Liveness probe",
                "produces": ["text/plain"],
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "types.RegisterRequest": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "example": "img-42"},
                "primary_url": {"type": "string", "example": "https://cdn.example.com/img-42/1920x1080.jpg"},
                "thumbnail_url": {"type": "string", "example": "https://cdn.example.com/img-42/thumb.jpg"},
                "priority": {"type": "string", "example": "normal"},
                "scale": {"type": "number", "example": 1},
                "size_hint": {"type": "integer", "example": 8294400}
            }
        },
        "types.ScaleRequest": {
            "type": "object",
            "properties": {"scale": {"type": "number", "example": 0.9}}
        },
        "types.ScaleResponse": {
            "type": "object",
            "properties": {
                "requested": {"type": "number", "example": 0.9},
                "scale": {"type": "number", "example": 1},
                "source": {"type": "string", "example": "original"}
            }
        },
        "types.ImageState": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "example": "img-42"},
                "state": {"type": "string", "example": "loaded"}
            }
        },
        "types.ReleaseResponse": {
            "type": "object",
            "properties": {
                "downgraded": {"type": "integer", "example": 3},
                "memory_estimate_bytes": {"type": "integer", "example": 104857600}
            }
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "invalid JSON body"},
                "code": {"type": "integer", "example": 400}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "images": {"type": "array", "items": {"type": "object"}},
                "states": {"type": "object", "additionalProperties": {"type": "integer"}},
                "inflight": {"type": "integer", "example": 2},
                "max_concurrent": {"type": "integer", "example": 4},
                "queued": {"type": "integer", "example": 0},
                "cache_entries": {"type": "integer", "example": 37},
                "cache_capacity": {"type": "integer", "example": 100},
                "eviction_policy": {"type": "string", "example": "fifo"},
                "memory_estimate_bytes": {"type": "integer", "example": 104857600},
                "memory_threshold_bytes": {"type": "integer", "example": 524288000},
                "scale": {"type": "number", "example": 1},
                "source": {"type": "string", "example": "original"},
                "scale_commits": {"type": "integer", "example": 3},
                "uptime_seconds": {"type": "integer", "example": 3600}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "imgload API",
	Description:      "HTTP API for progressive image loading and caching.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
