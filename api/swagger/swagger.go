package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Course API",
        "description": "Course enrollment platform backend",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Authentication"},
        {"name": "Courses", "description": "Course lifecycle and teacher assignments"},
        {"name": "Enrollments", "description": "Self-enrollment and feedback"}
    ],
    "paths": {
        "/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and receive an access token",
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/courses": {
            "get": {
                "tags": ["Courses"],
                "summary": "List all courses",
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["Courses"],
                "summary": "Create a course (admin)",
                "responses": {
                    "201": {"description": "Created"},
                    "403": {"description": "Forbidden"}
                }
            }
        },
        "/courses/{id}": {
            "get": {
                "tags": ["Courses"],
                "summary": "Get one course",
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["Courses"],
                "summary": "Partially update course fields (teacher or admin)",
                "responses": {"200": {"description": "OK"}}
            },
            "delete": {
                "tags": ["Courses"],
                "summary": "Delete a course (admin)",
                "responses": {"200": {"description": "Pre-deletion snapshot"}}
            }
        },
        "/courses/{id}/banner": {
            "put": {
                "tags": ["Courses"],
                "summary": "Upload a banner image (teacher or admin)",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/courses/{id}/schedule": {
            "put": {
                "tags": ["Courses"],
                "summary": "Replace the schedule document (teacher or admin)",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/courses/{id}/dates": {
            "put": {
                "tags": ["Courses"],
                "summary": "Update start/end dates (teacher or admin)",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/courses/{id}/teachers": {
            "post": {
                "tags": ["Courses"],
                "summary": "Attach teachers (idempotent, teacher or admin)",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/courses/{id}/teachers/{teacherId}": {
            "delete": {
                "tags": ["Courses"],
                "summary": "Detach one teacher (teacher or admin)",
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/courses/{id}/enrollments": {
            "get": {
                "tags": ["Courses"],
                "summary": "List enrolled users (teacher or admin)",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/courses/{id}/roster/export": {
            "get": {
                "tags": ["Courses"],
                "summary": "Download the roster as CSV or PDF (teacher or admin)",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/courses/{id}/enroll": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Enroll the authenticated user",
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Already enrolled"}
                }
            }
        },
        "/courses/{id}/feedback": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Leave feedback as the authenticated user",
                "responses": {"201": {"description": "Created"}}
            }
        }
    }
}`

// SwaggerInfo holds exported swagger registration info.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{"http"},
	Title:            "Course API",
	Description:      "Course enrollment platform backend",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
