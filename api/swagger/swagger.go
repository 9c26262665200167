package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Rating Flow API",
        "description": "Rating lifecycle and approval chain service",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {"name": "Auth", "description": "Authentication and session management"},
        {"name": "Users", "description": "User account administration"},
        {"name": "Directory", "description": "Units and departments"},
        {"name": "Ratings", "description": "Rating lifecycle management"},
        {"name": "Participants", "description": "Submissions and review decisions"},
        {"name": "Documents", "description": "Supporting document storage"},
        {"name": "Reports", "description": "Asynchronous result exports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Login with email and password",
                "responses": {
                    "200": {"description": "Tokens issued"},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Rotate a refresh token",
                "responses": {
                    "200": {"description": "New token pair"},
                    "401": {"description": "Invalid refresh token"}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Auth"],
                "summary": "Revoke the current refresh token",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "Logged out"}
                }
            }
        },
        "/auth/change-password": {
            "post": {
                "tags": ["Auth"],
                "summary": "Change the current user's password",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "Password changed"},
                    "400": {"description": "Weak or mismatched password"}
                }
            }
        },
        "/users": {
            "get": {
                "tags": ["Users"],
                "summary": "List users",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Paginated user list"}
                }
            },
            "post": {
                "tags": ["Users"],
                "summary": "Create a user",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "User created"},
                    "409": {"description": "Email already in use"}
                }
            }
        },
        "/users/{id}": {
            "get": {
                "tags": ["Users"],
                "summary": "Get a user",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "User detail"},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["Users"],
                "summary": "Update a user",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "User updated"}
                }
            },
            "delete": {
                "tags": ["Users"],
                "summary": "Deactivate a user",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "User deactivated"}
                }
            }
        },
        "/units": {
            "get": {
                "tags": ["Directory"],
                "summary": "List units",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Unit list"}}
            },
            "post": {
                "tags": ["Directory"],
                "summary": "Create a unit",
                "security": [{"BearerAuth": []}],
                "responses": {"201": {"description": "Unit created"}}
            }
        },
        "/departments": {
            "get": {
                "tags": ["Directory"],
                "summary": "List departments",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Department list"}}
            },
            "post": {
                "tags": ["Directory"],
                "summary": "Create a department",
                "security": [{"BearerAuth": []}],
                "responses": {"201": {"description": "Department created"}}
            }
        },
        "/ratings": {
            "get": {
                "tags": ["Ratings"],
                "summary": "List ratings visible to the caller",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Rating list"}}
            },
            "post": {
                "tags": ["Ratings"],
                "summary": "Create a rating with items and participants",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Rating created"},
                    "422": {"description": "Reviewer assignment invalid"}
                }
            }
        },
        "/ratings/{id}": {
            "get": {
                "tags": ["Ratings"],
                "summary": "Get a rating",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Rating detail"}}
            },
            "put": {
                "tags": ["Ratings"],
                "summary": "Update a rating before completion",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Rating updated"},
                    "409": {"description": "Rating already completed"}
                }
            },
            "delete": {
                "tags": ["Ratings"],
                "summary": "Delete a rating that never opened",
                "security": [{"BearerAuth": []}],
                "responses": {"204": {"description": "Rating deleted"}}
            }
        },
        "/ratings/{id}/complete": {
            "post": {
                "tags": ["Ratings"],
                "summary": "Open the rating for responses",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Rating opened"},
                    "409": {"description": "Invalid state transition"}
                }
            }
        },
        "/ratings/{id}/finalize": {
            "post": {
                "tags": ["Ratings"],
                "summary": "Close the rating early",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Rating closed"},
                    "409": {"description": "Invalid state transition"}
                }
            }
        },
        "/ratings/{id}/participants": {
            "get": {
                "tags": ["Participants"],
                "summary": "List participants of a rating",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Participant list"}}
            }
        },
        "/ratings/{id}/reports": {
            "post": {
                "tags": ["Reports"],
                "summary": "Queue report generation for a closed rating",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "202": {"description": "Job queued"},
                    "409": {"description": "Rating not closed"}
                }
            }
        },
        "/participants/{id}": {
            "get": {
                "tags": ["Participants"],
                "summary": "Get a participant with submission",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Participant detail"}}
            }
        },
        "/participants/{id}/fill": {
            "post": {
                "tags": ["Participants"],
                "summary": "Submit or resubmit scores and documents",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Submission accepted"},
                    "409": {"description": "Submission not allowed in current state"}
                }
            }
        },
        "/participants/{id}/decide": {
            "post": {
                "tags": ["Participants"],
                "summary": "Record an approval chain decision",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Decision recorded"},
                    "422": {"description": "Reviewer not eligible for this level"}
                }
            }
        },
        "/participants/{id}/feedback": {
            "get": {
                "tags": ["Participants"],
                "summary": "Effective per-item feedback for revision",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Feedback map"}}
            }
        },
        "/participants/{id}/history": {
            "get": {
                "tags": ["Participants"],
                "summary": "Full approval history across cycles",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Approval history"}}
            }
        },
        "/pending-actions": {
            "get": {
                "tags": ["Participants"],
                "summary": "Items awaiting the caller's action",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Pending action list"}}
            }
        },
        "/documents": {
            "post": {
                "tags": ["Documents"],
                "summary": "Upload a supporting document",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Signed reference URL"},
                    "400": {"description": "File too large or wrong type"}
                }
            }
        },
        "/documents/{id}/download": {
            "get": {
                "tags": ["Documents"],
                "summary": "Download a document via its signed token",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "File stream"},
                    "403": {"description": "Invalid token"}
                }
            }
        },
        "/reports/status/{id}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Poll a report job",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Job status"}}
            }
        },
        "/reports/download/{token}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download a finished report",
                "responses": {
                    "200": {"description": "File stream"},
                    "403": {"description": "Invalid or expired token"}
                }
            }
        }
    },
    "definitions": {
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
