// Package docs holds the OpenAPI document served under /swagger.
//
// Keep it in step with the godoc annotations on the handlers in
// internal/http/handlers; `swag init -g cmd/splitd/main.go` regenerates it.
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
        "/friends/add": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Records friendEmail as a friend of the caller. Adding an existing friend succeeds.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Friends"],
                "summary": "Add a favorite",
                "operationId": "addFriend",
                "parameters": [
                    {"description": "Friend to add", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/domain.FriendRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}},
                    "400": {"description": "Invalid email or self", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "User not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/friends/details": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Returns {mailId, name} for every registered user among the emails, in request order. Unknown emails are skipped.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Friends"],
                "summary": "Resolve friend emails to contacts",
                "operationId": "friendDetails",
                "parameters": [
                    {"description": "Emails to resolve", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/domain.FriendDetailsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ContactsEnvelope"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/friends/remove": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Friends"],
                "summary": "Remove a favorite",
                "operationId": "removeFriend",
                "parameters": [
                    {"description": "Friend to remove", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/domain.FriendRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}},
                    "400": {"description": "Invalid email", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not a friend", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/groups": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Groups the caller owns or belongs to, newest first. Supports conditional requests through a weak ETag.",
                "produces": ["application/json"],
                "tags": ["Groups"],
                "summary": "List groups",
                "operationId": "listGroups",
                "parameters": [
                    {"type": "string", "description": "Weak ETag from a previous response", "name": "If-None-Match", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.GroupsEnvelope"}},
                    "304": {"description": "Not Modified"},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Creates a group with the caller as owner and member, optionally with a first expense. Retrying with the same Idempotency-Key returns the original group with 200 and Idempotency-Replayed: true.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Groups"],
                "summary": "Create a group",
                "operationId": "createGroup",
                "parameters": [
                    {"type": "string", "description": "Client-generated key for safe retries", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Group definition", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/domain.CreateGroupRequest"}}
                ],
                "responses": {
                    "200": {"description": "Replayed", "schema": {"$ref": "#/definitions/handlers.GroupEnvelope"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.GroupEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/groups/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Groups"],
                "summary": "Get a group",
                "operationId": "getGroup",
                "parameters": [
                    {"type": "string", "description": "Group ID (UUID)", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.GroupEnvelope"}},
                    "404": {"description": "Group not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Name, friend emails in the order they were added, and group count.",
                "produces": ["application/json"],
                "tags": ["Friends"],
                "summary": "Current user profile",
                "operationId": "me",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ProfileEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/search": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Users whose email or name contains q (case-insensitive), excluding the caller. Prefix matches first.",
                "produces": ["application/json"],
                "tags": ["Friends"],
                "summary": "Search contacts",
                "operationId": "searchContacts",
                "parameters": [
                    {"type": "string", "example": "ann", "description": "Search text (at least 2 characters)", "name": "q", "in": "query", "required": true},
                    {"maximum": 50, "minimum": 1, "type": "integer", "default": 20, "description": "Max results", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ContactsEnvelope"}},
                    "400": {"description": "Query too short", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.FavoriteContact": {
            "type": "object",
            "properties": {
                "mailId": {"type": "string"},
                "name": {"type": "string"}
            }
        },
        "domain.UserProfile": {
            "type": "object",
            "properties": {
                "mailId": {"type": "string"},
                "name": {"type": "string"},
                "friends": {"type": "array", "items": {"type": "string"}},
                "groupCount": {"type": "integer"}
            }
        },
        "domain.FriendRequest": {
            "type": "object",
            "properties": {
                "friendEmail": {"type": "string", "example": "ana@example.com"}
            }
        },
        "domain.FriendDetailsRequest": {
            "type": "object",
            "properties": {
                "emails": {"type": "array", "items": {"type": "string"}}
            }
        },
        "domain.ExpenseInput": {
            "type": "object",
            "properties": {
                "description": {"type": "string"},
                "paidBy": {"type": "string"},
                "amount": {"type": "string", "example": "42.50"},
                "splitAmong": {"type": "array", "items": {"type": "string"}}
            }
        },
        "domain.CreateGroupRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "members": {"type": "array", "items": {"type": "string"}},
                "expense": {"$ref": "#/definitions/domain.ExpenseInput"}
            }
        },
        "domain.Expense": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "groupId": {"type": "string"},
                "description": {"type": "string"},
                "paidBy": {"type": "string"},
                "amount": {"type": "string"},
                "splitAmong": {"type": "array", "items": {"type": "string"}},
                "createdAt": {"type": "string", "format": "date-time"}
            }
        },
        "domain.Group": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "ownerEmail": {"type": "string"},
                "name": {"type": "string"},
                "members": {"type": "array", "items": {"type": "string"}},
                "expenses": {"type": "array", "items": {"$ref": "#/definitions/domain.Expense"}},
                "createdAt": {"type": "string", "format": "date-time"},
                "updatedAt": {"type": "string", "format": "date-time"}
            }
        },
        "handlers.Envelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean", "example": true},
                "data": {"type": "object"},
                "message": {"type": "string"}
            }
        },
        "handlers.ContactsEnvelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean", "example": true},
                "data": {"type": "array", "items": {"$ref": "#/definitions/domain.FavoriteContact"}}
            }
        },
        "handlers.ProfileEnvelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean", "example": true},
                "data": {"$ref": "#/definitions/domain.UserProfile"}
            }
        },
        "handlers.GroupEnvelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean", "example": true},
                "data": {"$ref": "#/definitions/domain.Group"}
            }
        },
        "handlers.GroupsEnvelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean", "example": true},
                "data": {"type": "array", "items": {"$ref": "#/definitions/domain.Group"}}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean", "example": false},
                "data": {"type": "object"},
                "message": {"type": "string", "example": "resource not found"},
                "code": {"type": "string", "example": "not_found"},
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and the account token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Billsplit Directory API",
	Description:      "Users, favorites, contact search and groups for the billsplit client.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
