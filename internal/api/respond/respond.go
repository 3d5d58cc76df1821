// Package respond writes JSON bodies and coded errors.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Vasu1712/buddychat/internal/apperrors"
)

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// Error writes err as {"code", "message"} with the status of its code.
// Causes are not exposed.
func Error(w http.ResponseWriter, err error) {
	body := apperrors.AppError{Code: apperrors.CodeOf(err), Message: "internal error"}
	var ae *apperrors.AppError
	if errors.As(err, &ae) && ae.Code != apperrors.CodeInternal {
		body.Message = ae.Message
	}
	JSON(w, apperrors.HTTPStatus(err), body)
}
