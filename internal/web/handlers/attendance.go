package handlers

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/audit"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/face"
	"github.com/kozaktomas/face-attendance/internal/register"
	"github.com/kozaktomas/face-attendance/internal/service"
	"github.com/kozaktomas/face-attendance/internal/store"
	"github.com/kozaktomas/face-attendance/internal/verify"
)

// AttendanceService is the part of service.Service the handlers use.
type AttendanceService interface {
	Embed(ctx context.Context, img image.Image) ([]float32, error)
	Verify(ctx context.Context, tenant, organizationID, personID string, embedding []float32) (verify.Result, error)
	IsRegistered(ctx context.Context, tenant, organizationID, personID string) bool
	RegisterFromVideo(ctx context.Context, req service.RegistrationRequest, video []byte, onProgress func(register.Progress)) (register.Result, error)
	RecordAttempt(ctx context.Context, rec audit.Record) error
	Identify(ctx context.Context, tenant, organizationID string, embedding []float32, limit int) ([]verify.Match, error)
}

// AttendanceHandler serves verification, registration and identification.
type AttendanceHandler struct {
	service       AttendanceService
	identifyLimit int
	logger        *zap.Logger
	now           func() time.Time
}

// NewAttendanceHandler creates a new attendance handler. A nil logger discards output.
func NewAttendanceHandler(svc AttendanceService, identifyLimit int, logger *zap.Logger) *AttendanceHandler {
	if identifyLimit < 1 {
		identifyLimit = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceHandler{
		service:       svc,
		identifyLimit: min(identifyLimit, constants.MaxIdentifyLimit),
		logger:        logger,
		now:           time.Now,
	}
}

// RecogniseRequest is the form of a verification attempt.
type RecogniseRequest struct {
	Tenant         string `form:"tenant" validate:"tenant"`
	OrganizationID string `form:"organization_id" validate:"required,segment"`
	PersonID       string `form:"person_id" validate:"required,segment"`
	PersonName     string `form:"person_name"`
	Location       string `form:"location"`
	ShiftDetails   string `form:"shift_details"`
	Temperature    string `form:"temperature"`
	MaskStatus     string `form:"mask_status"`
	DeviceName     string `form:"device_name"`
	DeviceBrand    string `form:"device_brand"`
	SystemName     string `form:"system_name"`
	IPAddress      string `form:"ip_address"`
}

// RecogniseResponse is the verification decision.
type RecogniseResponse struct {
	Status         string  `json:"status"`
	PersonName     string  `json:"person_name"`
	PersonID       string  `json:"person_id"`
	OrganizationID string  `json:"organization_id"`
	WeightedSum    float64 `json:"weighted_sum"`
	AuditError     string  `json:"audit_error,omitempty"`
}

// RegisterRequest is the form of an enrollment.
type RegisterRequest struct {
	Tenant         string `form:"tenant" validate:"tenant"`
	OrganizationID string `form:"organization_id" validate:"required,segment"`
	PersonID       string `form:"person_id" validate:"required,segment"`
	PersonName     string `form:"person_name"`
}

// RegisterResponse reports a completed enrollment.
type RegisterResponse struct {
	Message         string `json:"message"`
	PersonID        string `json:"person_id"`
	OrganizationID  string `json:"organization_id"`
	Tenant          string `json:"tenant"`
	EmbeddingsSaved int    `json:"embeddings_saved"`
	Frames          int    `json:"frames"`
}

// IdentifyRequest is the form of an identification.
type IdentifyRequest struct {
	Tenant         string `form:"tenant" validate:"tenant"`
	OrganizationID string `form:"organization_id" validate:"required,segment"`
	Limit          int    `form:"limit" validate:"gte=0,lte=50"`
}

// IdentifyResponse lists the nearest enrolled persons.
type IdentifyResponse struct {
	Matches []verify.Match `json:"matches"`
	Count   int            `json:"count"`
}

// Recognise verifies a photo against the person's enrolled templates and
// records the attempt in the audit log.
func (h *AttendanceHandler) Recognise(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxPhotoUploadSize)
	if err := r.ParseMultipartForm(constants.MultipartMemory); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	req := RecogniseRequest{
		Tenant:         r.FormValue(constants.FieldTenant),
		OrganizationID: r.FormValue(constants.FieldOrganizationID),
		PersonID:       r.FormValue(constants.FieldPersonID),
		PersonName:     r.FormValue(constants.FieldPersonName),
		Location:       r.FormValue(constants.FieldLocation),
		ShiftDetails:   r.FormValue("shift_details"),
		Temperature:    r.FormValue("temperature"),
		MaskStatus:     r.FormValue("mask_status"),
		DeviceName:     r.FormValue("device_name"),
		DeviceBrand:    r.FormValue("device_brand"),
		SystemName:     r.FormValue("system_name"),
		IPAddress:      r.FormValue("ip_address"),
	}
	img, ok := readImage(w, r)
	if !ok {
		return
	}
	if err := validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	embedding, err := h.service.Embed(r.Context(), img)
	if err != nil {
		if errors.Is(err, face.ErrNoEmbedding) {
			respondError(w, http.StatusBadRequest, "no face found in photo")
			return
		}
		if errors.Is(err, face.ErrRejected) {
			respondError(w, http.StatusBadRequest, "photo rejected by face service")
			return
		}
		h.logger.Error("embedding extraction failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to extract embedding")
		return
	}

	result, err := h.service.Verify(r.Context(), req.Tenant, req.OrganizationID, req.PersonID, embedding)
	if err != nil {
		if isInputError(err) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("verification failed",
			zap.String("organization_id", sanitizeForLog(req.OrganizationID)),
			zap.String("person_id", sanitizeForLog(req.PersonID)),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "verification failed")
		return
	}

	resp := RecogniseResponse{
		Status:         constants.StatusNotVerified,
		PersonName:     req.PersonName,
		PersonID:       req.PersonID,
		OrganizationID: req.OrganizationID,
		WeightedSum:    result.Score,
	}
	if result.Verified {
		resp.Status = constants.StatusVerified
	}

	lat, lon := audit.ParseLocation(req.Location)
	err = h.service.RecordAttempt(r.Context(), audit.Record{
		Timestamp:      h.now(),
		PersonName:     req.PersonName,
		PersonID:       req.PersonID,
		OrganizationID: req.OrganizationID,
		Verified:       result.Verified,
		Score:          result.Score,
		MaskStatus:     req.MaskStatus,
		Temperature:    req.Temperature,
		ShiftDetails:   req.ShiftDetails,
		Latitude:       lat,
		Longitude:      lon,
		DeviceName:     req.DeviceName,
		DeviceBrand:    req.DeviceBrand,
		SystemName:     req.SystemName,
		IPAddress:      req.IPAddress,
		Tenant:         req.Tenant,
	})
	if err != nil {
		resp.AuditError = "failed to record attempt"
	}

	respondJSON(w, http.StatusOK, resp)
}

// Check reports whether a person has enrolled templates. Missing or invalid
// parameters read as not registered.
func (h *AttendanceHandler) Check(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	registered := h.service.IsRegistered(r.Context(),
		q.Get(constants.FieldTenant), q.Get(constants.FieldOrganizationID), q.Get(constants.FieldPersonID))
	respondJSON(w, http.StatusOK, map[string]bool{"registered": registered})
}

// Register enrolls a person from an uploaded video.
func (h *AttendanceHandler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxVideoUploadSize)
	if err := r.ParseMultipartForm(constants.MultipartMemory); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	req := RegisterRequest{
		Tenant:         r.FormValue(constants.FieldTenant),
		OrganizationID: r.FormValue(constants.FieldOrganizationID),
		PersonID:       r.FormValue(constants.FieldPersonID),
		PersonName:     r.FormValue(constants.FieldPersonName),
	}
	if err := validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	video, err := readFormFile(r, constants.FieldVideo)
	if err != nil {
		respondError(w, http.StatusBadRequest, "no video uploaded")
		return
	}

	res, err := h.service.RegisterFromVideo(r.Context(), service.RegistrationRequest{
		Tenant:         req.Tenant,
		OrganizationID: req.OrganizationID,
		PersonID:       req.PersonID,
		PersonName:     req.PersonName,
	}, video, nil)
	if err != nil {
		if isInputError(err) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("registration failed",
			zap.String("organization_id", sanitizeForLog(req.OrganizationID)),
			zap.String("person_id", sanitizeForLog(req.PersonID)),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	tenant, _ := store.NormalizeTenant(req.Tenant)
	name := req.PersonName
	if name == "" {
		name = req.PersonID
	}
	respondJSON(w, http.StatusOK, RegisterResponse{
		Message:         fmt.Sprintf("Embeddings generated successfully for %s", name),
		PersonID:        req.PersonID,
		OrganizationID:  req.OrganizationID,
		Tenant:          tenant,
		EmbeddingsSaved: res.Saved,
		Frames:          res.Frames,
	})
}

// Identify returns the enrolled persons closest to the face in a photo.
func (h *AttendanceHandler) Identify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxPhotoUploadSize)
	if err := r.ParseMultipartForm(constants.MultipartMemory); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	req := IdentifyRequest{
		Tenant:         r.FormValue(constants.FieldTenant),
		OrganizationID: r.FormValue(constants.FieldOrganizationID),
	}
	if s := r.FormValue(constants.FieldLimit); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "limit must be a number")
			return
		}
		req.Limit = n
	}
	if err := validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if req.Limit == 0 {
		req.Limit = h.identifyLimit
	}

	img, ok := readImage(w, r)
	if !ok {
		return
	}
	embedding, err := h.service.Embed(r.Context(), img)
	if err != nil {
		if errors.Is(err, face.ErrNoEmbedding) {
			respondError(w, http.StatusBadRequest, "no face found in photo")
			return
		}
		if errors.Is(err, face.ErrRejected) {
			respondError(w, http.StatusBadRequest, "photo rejected by face service")
			return
		}
		h.logger.Error("embedding extraction failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to extract embedding")
		return
	}

	matches, err := h.service.Identify(r.Context(), req.Tenant, req.OrganizationID, embedding, req.Limit)
	if err != nil {
		if isInputError(err) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("identification failed",
			zap.String("organization_id", sanitizeForLog(req.OrganizationID)),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "identification failed")
		return
	}
	if matches == nil {
		matches = []verify.Match{}
	}
	respondJSON(w, http.StatusOK, IdentifyResponse{Matches: matches, Count: len(matches)})
}

// isInputError reports whether err was caused by the request rather than the server.
func isInputError(err error) bool {
	return errors.Is(err, store.ErrInvalidTenant) ||
		errors.Is(err, store.ErrInvalidKey) ||
		errors.Is(err, register.ErrNoValidFrames) ||
		errors.Is(err, register.ErrNoFacesDetected)
}

// readImage decodes the uploaded photo, writing a 400 response on failure.
func readImage(w http.ResponseWriter, r *http.Request) (image.Image, bool) {
	data, err := readFormFile(r, constants.FieldPhoto)
	if err != nil {
		respondError(w, http.StatusBadRequest, "image missing")
		return nil, false
	}
	img, err := face.Decode(data)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid image")
		return nil, false
	}
	return img, true
}

func readFormFile(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return readAll(file)
}

func readAll(f multipart.File) ([]byte, error) {
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty upload")
	}
	return data, nil
}
