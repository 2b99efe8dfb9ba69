package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"pickupd/internal/service"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeServiceError maps service sentinels to status codes
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrResolution):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotApplicable):
		writeError(w, http.StatusConflict, "not applicable")
	case errors.Is(err, service.ErrRemoval), errors.Is(err, service.ErrServerNotFree):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrControlPlane):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		log.Printf("Request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags
func decodeAndValidate(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errors.New("invalid field: " + verrs[0].Field())
		}
		return err
	}
	return nil
}
