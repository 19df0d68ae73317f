package pkg

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"
)

var ContentType = struct {
	JSON string
}{
	JSON: "application/json",
}

// Response is the envelope every JSON endpoint answers with.
// Endpoints returning data embed it into their own response struct.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func OK(message string) Response {
	return Response{Success: true, Message: message}
}

func Fail(errMessage string) Response {
	return Response{Success: false, Error: errMessage}
}

func WriteResponseBytes(w http.ResponseWriter, contentType string, message []byte, statusCode int) {
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	w.WriteHeader(statusCode)
	if _, err := w.Write(message); err != nil {
		log.Errorf("failed to write response [%d bytes]: %s", len(message), err)
	}
}

// WriteJSON marshals the payload and writes it with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, payload any) {
	payloadJson, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("marshal json response: %s", err)
		WriteResponseBytes(w, ContentType.JSON, []byte(`{"success":false,"error":"Server error"}`), http.StatusInternalServerError)
		return
	}
	WriteResponseBytes(w, ContentType.JSON, payloadJson, statusCode)
}

func WriteJSONOK(w http.ResponseWriter, payload any) {
	WriteJSON(w, http.StatusOK, payload)
}

func WriteJSONError(w http.ResponseWriter, statusCode int, errMessage string) {
	WriteJSON(w, statusCode, Fail(errMessage))
}
