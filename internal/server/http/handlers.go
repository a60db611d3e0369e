package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/dmitrijs2005/userauth/internal/common"
	"github.com/dmitrijs2005/userauth/internal/logging"
	"github.com/dmitrijs2005/userauth/internal/server/models"
	"github.com/dmitrijs2005/userauth/internal/server/services"
	"github.com/dmitrijs2005/userauth/internal/server/store"
	"github.com/dmitrijs2005/userauth/internal/server/users"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

// UserService is the business surface the handlers call into.
type UserService interface {
	Authenticator
	Register(ctx context.Context, in services.RegisterInput) (*services.Session, error)
	Login(ctx context.Context, email, password string) (*services.Session, error)
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, userID string, in services.ProfileInput) (*models.Profile, error)
	Stats() store.Stats
}

type Handler struct {
	users    UserService
	validate *validator.Validate
	logger   logging.Logger
}

func NewHandler(us UserService, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Handler{
		users:    us,
		validate: newValidator(),
		logger:   logger.With("module", "http"),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return v
}

type registerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type profileRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

type profileResponse struct {
	User *models.Profile `json:"user"`
}

var fieldMessages = map[string]string{
	"loginRequest.email.required":    "email is required",
	"loginRequest.password.required": "password is required",
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	body, err := decodeObject(w, r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, msgInvalidInput, err.Error())
		return
	}

	var req registerRequest
	if errs := readStrings(body,
		stringDst{"firstName", &req.FirstName},
		stringDst{"lastName", &req.LastName},
		stringDst{"email", &req.Email},
		stringDst{"password", &req.Password},
	); len(errs) > 0 {
		writeErr(w, http.StatusBadRequest, msgInvalidInput, errs...)
		return
	}

	errs := users.Validate(users.Fields{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if len(errs) > 0 {
		writeErr(w, http.StatusBadRequest, msgInvalidInput, errs...)
		return
	}

	sess, err := h.users.Register(r.Context(), services.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		writeServiceErr(w, err)
		return
	}

	writeOK(w, http.StatusCreated, "user registered", sess)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	body, err := decodeObject(w, r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, msgInvalidInput, err.Error())
		return
	}

	// A credential that is not a string can never match.
	email, okEmail := stringField(body, "email")
	password, okPassword := stringField(body, "password")
	if !okEmail || !okPassword {
		writeServiceErr(w, common.ErrInvalidCredentials)
		return
	}

	req := loginRequest{Email: email, Password: password}
	if errs := h.check(&req); len(errs) > 0 {
		writeErr(w, http.StatusBadRequest, msgInvalidInput, errs...)
		return
	}

	sess, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceErr(w, err)
		return
	}

	writeOK(w, http.StatusOK, "login successful", sess)
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	caller := ProfileFromContext(r.Context())
	if caller == nil {
		writeServiceErr(w, common.ErrMissingToken)
		return
	}

	p, err := h.users.GetProfile(r.Context(), caller.ID)
	if err != nil {
		writeServiceErr(w, err)
		return
	}

	writeOK(w, http.StatusOK, "", profileResponse{User: p})
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	caller := ProfileFromContext(r.Context())
	if caller == nil {
		writeServiceErr(w, common.ErrMissingToken)
		return
	}

	body, err := decodeObject(w, r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, msgInvalidInput, err.Error())
		return
	}

	var req profileRequest
	if errs := readStrings(body,
		stringDst{"firstName", &req.FirstName},
		stringDst{"lastName", &req.LastName},
		stringDst{"email", &req.Email},
	); len(errs) > 0 {
		writeErr(w, http.StatusBadRequest, msgInvalidInput, errs...)
		return
	}

	p, err := h.users.UpdateProfile(r.Context(), caller.ID, services.ProfileInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	})
	if err != nil {
		writeServiceErr(w, err)
		return
	}

	writeOK(w, http.StatusOK, "profile updated", profileResponse{User: p})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, "", h.users.Stats())
}

// Index describes the API. Authenticated callers also get their own profile.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"stats": h.users.Stats(),
		"endpoints": map[string]string{
			"register":      "POST /api/auth/register",
			"login":         "POST /api/auth/login",
			"profile":       "GET /api/auth/profile",
			"updateProfile": "PUT /api/auth/profile",
			"stats":         "GET /api/auth/stats",
			"health":        "GET /api/health",
		},
	}
	if p := ProfileFromContext(r.Context()); p != nil {
		data["user"] = p
	}
	writeOK(w, http.StatusOK, "user auth API", data)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	st := h.users.Stats()
	status, code := "ok", http.StatusOK
	if !st.Initialized {
		status, code = "starting", http.StatusServiceUnavailable
	}
	writeJSON(w, code, envelope{
		Success: st.Initialized,
		Data:    map[string]any{"status": status, "users": st},
	})
}

// check runs the struct tags of req and turns failures into messages.
func (h *Handler) check(req any) []string {
	err := h.validate.Struct(req)
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		h.logger.Error(context.Background(), "validator failed", "error", err)
		return []string{msgInvalidInput}
	}

	msgs := make([]string, 0, len(ves))
	for _, fe := range ves {
		if msg, ok := fieldMessages[fe.Namespace()+"."+fe.Tag()]; ok {
			msgs = append(msgs, msg)
		} else {
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return msgs
}

// decodeObject reads a JSON object body without committing to field types, so
// that callers can tell a missing field from a wrongly typed one.
func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))

	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, errors.New("body must be a JSON object")
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}

// stringField returns body[key] as a string. Missing and null values read as
// empty; any other non-string value reports ok == false.
func stringField(body map[string]any, key string) (string, bool) {
	v, present := body[key]
	if !present || v == nil {
		return "", true
	}
	s, ok := v.(string)
	return s, ok
}

type stringDst struct {
	key string
	dst *string
}

// readStrings copies the named fields of body into their destinations and
// reports every field that is present but not a string.
func readStrings(body map[string]any, fields ...stringDst) []string {
	var errs []string
	for _, f := range fields {
		v, ok := stringField(body, f.key)
		if !ok {
			errs = append(errs, f.key+" must be a string")
			continue
		}
		*f.dst = v
	}
	return errs
}
