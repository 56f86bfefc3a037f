package api

import "github.com/swaggo/swag"

// SwaggerInfo describes the usage API. The document is registered with swag
// under SwaggerInfo.InstanceName() and served from /swagger/. Keep it in step
// with the handler annotations in handlers.go.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "dsusage REST API",
	Description:      "Data stream usage reports, encoded for the transport version each caller negotiates.",
	InfoInstanceName: swag.Name,
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

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
        "/health": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Get the health status of the API and the transport version it speaks",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/usage": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Render the latest usage report as a peer on the negotiated transport version sees it",
                "produces": ["application/json", "application/yaml"],
                "tags": ["usage"],
                "summary": "Get the latest usage report",
                "parameters": [
                    {"type": "string", "description": "Caller transport version", "name": "X-Transport-Version", "in": "header"},
                    {"type": "string", "description": "Caller transport version when the header is absent", "name": "transport_version", "in": "query"},
                    {"type": "string", "description": "json (default) or yaml", "name": "format", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.UsageResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/usage/wire": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Encode the latest usage report for the negotiated transport version",
                "produces": ["application/octet-stream"],
                "tags": ["usage"],
                "summary": "Get the latest usage report in wire form",
                "parameters": [
                    {"type": "string", "description": "Caller transport version", "name": "X-Transport-Version", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "string", "format": "binary"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/usage/refresh": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Collect a fresh usage report from the cluster state",
                "produces": ["application/json"],
                "tags": ["usage"],
                "summary": "Refresh the usage report",
                "parameters": [
                    {"type": "string", "description": "Caller transport version", "name": "X-Transport-Version", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.UsageResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/usage/decode": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Decode a wire-form usage report sent at the negotiated transport version",
                "consumes": ["application/octet-stream"],
                "produces": ["application/json"],
                "tags": ["usage"],
                "summary": "Decode a usage report",
                "parameters": [
                    {"type": "string", "description": "Caller transport version", "name": "X-Transport-Version", "in": "header"},
                    {"description": "Wire-form report", "name": "body", "in": "body", "required": true, "schema": {"type": "string", "format": "binary"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.UsageResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/usage/encode": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Encode a rendered JSON usage report for the negotiated transport version",
                "consumes": ["application/json"],
                "produces": ["application/octet-stream"],
                "tags": ["usage"],
                "summary": "Encode a usage report",
                "parameters": [
                    {"type": "string", "description": "Caller transport version", "name": "X-Transport-Version", "in": "header"},
                    {"description": "Rendered report", "name": "body", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "string", "format": "binary"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/snapshots": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "List stored usage reports, newest first",
                "produces": ["application/json"],
                "tags": ["snapshots"],
                "summary": "List snapshots",
                "parameters": [
                    {"type": "integer", "description": "Maximum number of snapshots (1-1000, default 20)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/api.UsageResponse"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/snapshots/{id}": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Get one stored usage report by its ksuid",
                "produces": ["application/json"],
                "tags": ["snapshots"],
                "summary": "Get a snapshot",
                "parameters": [
                    {"type": "string", "description": "Snapshot ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.UsageResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        }
    },
    "definitions": {
        "api.APIResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {},
                "error": {"type": "string"}
            }
        },
        "api.UsageResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "collected_at": {"type": "string"},
                "transport_version": {"type": "string"},
                "hash": {"type": "string"},
                "usage": {"type": "object"}
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {
            "type": "apiKey",
            "name": "X-API-Key",
            "in": "header"
        }
    }
}`
