package http

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance for request payloads
var validate = validator.New()

// examDateLayout is the wire format for exam dates
const examDateLayout = "2006-01-02"

// VerifyRequest is the payload of POST /api/verify
type VerifyRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
	License  string `json:"license" validate:"required"`
}

// Bind implements render.Binder
func (v *VerifyRequest) Bind(r *http.Request) error {
	return validate.Struct(v)
}

// GenerateRequest is the payload of POST /api/admin/generate
type GenerateRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
	Expiry   string `json:"expiry" validate:"required,len=8,numeric"`
	UserID   string `json:"user_id,omitempty"`
	UserName string `json:"user_name" validate:"required"`
	ExamDate string `json:"exam_date,omitempty"`
}

// Bind implements render.Binder
func (g *GenerateRequest) Bind(r *http.Request) error {
	if err := validate.Struct(g); err != nil {
		return err
	}
	if g.ExamDate != "" {
		if _, err := time.Parse(examDateLayout, g.ExamDate); err != nil {
			return err
		}
	}
	return nil
}

// ParsedExamDate returns the exam date, nil when absent. Call after Bind.
func (g *GenerateRequest) ParsedExamDate() *time.Time {
	if g.ExamDate == "" {
		return nil
	}
	t, err := time.Parse(examDateLayout, g.ExamDate)
	if err != nil {
		return nil
	}
	return &t
}

// RevokeDeviceRequest is the payload of the device revocation endpoints
type RevokeDeviceRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
	Reason   string `json:"reason,omitempty"`
}

// Bind implements render.Binder
func (v *RevokeDeviceRequest) Bind(r *http.Request) error {
	return validate.Struct(v)
}

// RevokeUserRequest is the payload of the user revocation endpoints
type RevokeUserRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Reason string `json:"reason,omitempty"`
}

// Bind implements render.Binder
func (v *RevokeUserRequest) Bind(r *http.Request) error {
	return validate.Struct(v)
}

// ResetProgressRequest is the payload of POST /api/admin/reset-progress
type ResetProgressRequest struct {
	UserID string `json:"user_id" validate:"required"`
	TestID string `json:"test_id" validate:"required"`
}

// Bind implements render.Binder
func (v *ResetProgressRequest) Bind(r *http.Request) error {
	return validate.Struct(v)
}

// ProgressGetRequest is the payload of POST /api/progress/get
type ProgressGetRequest struct {
	DeviceID string   `json:"device_id" validate:"required"`
	License  string   `json:"license" validate:"required"`
	TestIDs  []string `json:"test_ids" validate:"required,min=1,dive,required"`
}

// Bind implements render.Binder
func (p *ProgressGetRequest) Bind(r *http.Request) error {
	return validate.Struct(p)
}

// MarkPerfectRequest is the payload of POST /api/progress/mark-perfect
type MarkPerfectRequest struct {
	DeviceID  string `json:"device_id" validate:"required"`
	License   string `json:"license" validate:"required"`
	TestID    string `json:"test_id" validate:"required"`
	AttemptID string `json:"attempt_id,omitempty"`
}

// Bind implements render.Binder
func (m *MarkPerfectRequest) Bind(r *http.Request) error {
	return validate.Struct(m)
}
