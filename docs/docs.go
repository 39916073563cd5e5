// Package docs holds the Swagger document served by the portsweep API.
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
  "securityDefinitions": {
    "ApiKeyAuth": {
      "type": "apiKey",
      "name": "Authorization",
      "in": "header",
      "description": "Bearer token: \"Bearer <api key>\""
    }
  },
  "paths": {
    "/scans": {
      "post": {
        "security": [
          {
            "ApiKeyAuth": []
          }
        ],
        "consumes": [
          "application/json"
        ],
        "produces": [
          "application/json"
        ],
        "tags": [
          "Scans"
        ],
        "summary": "Scan every TCP port of a target",
        "description": "Probes ports 1-65535 of the target with a TCP connect and returns the open ones in ascending order. The request blocks until the scan completes; nothing is stored server-side.",
        "operationId": "createScan",
        "parameters": [
          {
            "description": "Scan request parameters",
            "name": "scanRequest",
            "in": "body",
            "required": true,
            "schema": {
              "$ref": "#/definitions/CreateScanRequest"
            }
          }
        ],
        "responses": {
          "200": {
            "description": "Scan finished",
            "schema": {
              "$ref": "#/definitions/ScanResponse"
            }
          },
          "400": {
            "description": "Malformed JSON body or failed validation",
            "schema": {
              "$ref": "#/definitions/ErrorResponse"
            }
          },
          "401": {
            "description": "Missing or incorrect API key",
            "schema": {
              "$ref": "#/definitions/ErrorResponse"
            }
          },
          "409": {
            "description": "A scan of this target is already running",
            "schema": {
              "$ref": "#/definitions/ErrorResponse"
            }
          },
          "429": {
            "description": "Rate limit exceeded for the calling client",
            "schema": {
              "$ref": "#/definitions/ErrorResponse"
            }
          },
          "500": {
            "description": "Lock backend failure",
            "schema": {
              "$ref": "#/definitions/ErrorResponse"
            }
          }
        }
      }
    },
    "/healthz": {
      "get": {
        "produces": [
          "application/json"
        ],
        "tags": [
          "Health"
        ],
        "summary": "Service health",
        "description": "Reports whether the Redis backend used for locking and rate limiting is reachable.",
        "operationId": "health",
        "responses": {
          "200": {
            "description": "Service ready",
            "schema": {
              "$ref": "#/definitions/HealthResponse"
            }
          },
          "503": {
            "description": "Redis unreachable",
            "schema": {
              "$ref": "#/definitions/HealthResponse"
            }
          }
        }
      }
    }
  },
  "definitions": {
    "CreateScanRequest": {
      "type": "object",
      "required": [
        "target"
      ],
      "properties": {
        "target": {
          "type": "string",
          "description": "IPv4 or IPv6 address literal. Host names are not resolved.",
          "example": "192.0.2.10"
        },
        "threads": {
          "type": "integer",
          "minimum": 1,
          "maximum": 65535,
          "description": "Worker count. Omit to use the server default.",
          "example": 64
        }
      }
    },
    "ScanResponse": {
      "type": "object",
      "properties": {
        "id": {
          "type": "string",
          "format": "uuid",
          "example": "a3f5c62e-1234-4f72-a84a-1c2d3e4f5678"
        },
        "target": {
          "type": "string",
          "example": "192.0.2.10"
        },
        "workers": {
          "type": "integer",
          "example": 64
        },
        "open_ports": {
          "type": "array",
          "items": {
            "type": "integer"
          },
          "example": [
            22,
            80,
            443
          ]
        },
        "started_at": {
          "type": "string",
          "format": "date-time",
          "example": "2024-01-02T15:04:05Z"
        },
        "completed_at": {
          "type": "string",
          "format": "date-time",
          "example": "2024-01-02T15:06:30Z"
        },
        "duration_ms": {
          "type": "integer",
          "example": 145000
        }
      }
    },
    "HealthResponse": {
      "type": "object",
      "properties": {
        "status": {
          "type": "string",
          "enum": [
            "ok",
            "unavailable"
          ],
          "example": "ok"
        }
      }
    },
    "ErrorResponse": {
      "type": "object",
      "properties": {
        "error": {
          "type": "string",
          "example": "target is already being scanned"
        }
      }
    }
  }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http"},
	Title:            "portsweep API",
	Description:      "Full-range TCP connect scanning over HTTP.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
