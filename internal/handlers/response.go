package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"apexdispatch/internal/apierr"
	"apexdispatch/internal/middleware"
	"apexdispatch/internal/platforms"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

var validate = validator.New()

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	middleware.WriteError(w, r, toAPIError(err))
}

// toAPIError classifies service and platform failures into the error envelope.
func toAPIError(err error) error {
	if e, ok := apierr.As(err); ok {
		return e
	}
	var cfgErr *platforms.ConfigError
	if errors.As(err, &cfgErr) {
		return apierr.Configuration(cfgErr)
	}
	if errors.Is(err, platforms.ErrUnsupportedServiceType) {
		return apierr.Wrap(err, http.StatusBadRequest, apierr.CodeUnsupportedServiceType, err.Error())
	}
	var perr *platforms.Error
	if errors.As(err, &perr) {
		return apierr.Wrap(err, http.StatusBadGateway, apierr.CodePlatform, perr.Error())
	}
	return err
}

// decodeRequest reads a JSON body into dst and validates it.
func decodeRequest(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apierr.Wrap(err, http.StatusBadRequest, apierr.CodeValidation, "Invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		return apierr.Validation(formatValidationErrors(err))
	}
	return nil
}

func formatValidationErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("Field '%s' failed on the '%s' tag", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s (value: %s)", msg, fe.Param())
		}
		out = append(out, msg)
	}
	return out
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, apierr.New(http.StatusBadRequest, apierr.CodeValidation, "Invalid id")
	}
	return id, nil
}
