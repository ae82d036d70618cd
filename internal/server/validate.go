package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
)

const maxBodyBytes = 8 << 20

var (
	bulkAddSchema = mustSchema(`{
		"type": "object",
		"required": ["mode"],
		"properties": {
			"mode": {"enum": ["all", "selected"]},
			"company_ids": {"type": "array", "items": {"type": "integer"}}
		}
	}`)
	undoSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"target_collection_id": {"type": "string"}
		}
	}`)
	deleteCompaniesSchema = mustSchema(`{
		"type": "object",
		"required": ["mode"],
		"properties": {
			"mode": {"enum": ["all", "selected"]},
			"company_ids": {"type": "array", "items": {"type": "integer"}},
			"exclude_ids": {"type": "array", "items": {"type": "integer"}}
		}
	}`)
	createCollectionSchema = mustSchema(`{
		"type": "object",
		"required": ["collection_name"],
		"properties": {
			"collection_name": {"type": "string", "minLength": 1, "maxLength": 200}
		}
	}`)
	addCompaniesSchema = mustSchema(`{
		"type": "object",
		"required": ["company_ids"],
		"properties": {
			"company_ids": {"type": "array", "minItems": 1, "items": {"type": "integer"}}
		}
	}`)
)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("compile request schema: %v", err))
	}
	return s
}

// bodyError is a request body that is not JSON or does not match its schema.
type bodyError struct {
	msg        string
	violations []FieldViolation
}

func (e *bodyError) Error() string { return e.msg }

// decodeBody validates the request body against schema and decodes it into v.
// An empty body is treated as an empty object.
func decodeBody(r *http.Request, schema *gojsonschema.Schema, v any) error {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return &bodyError{msg: "read body: " + err.Error()}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &bodyError{msg: "invalid JSON body: " + err.Error()}
	}
	if !res.Valid() {
		violations := make([]FieldViolation, 0, len(res.Errors()))
		for _, item := range res.Errors() {
			violations = append(violations, FieldViolation{Field: item.Field(), Message: item.Description()})
		}
		return &bodyError{msg: "request body failed validation", violations: violations}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &bodyError{msg: "invalid JSON body: " + err.Error()}
	}
	return nil
}

func writeBodyError(w http.ResponseWriter, err error) {
	var be *bodyError
	if errors.As(err, &be) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: be.msg, Code: "INVALID_BODY", Details: be.violations})
		return
	}
	writeError(w, http.StatusBadRequest, err.Error(), "INVALID_BODY")
}

// validCollectionID reports whether id is a collection id (a UUID).
func validCollectionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
