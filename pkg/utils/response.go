package utils

import (
	"encoding/json"
	"log"
	"net/http"
)

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// ErrorBody 是所有错误响应的结构，message 仅在有底层错误时出现。
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorBody{Error: message})
}

// RespondErrorDetail 发送带底层错误信息的错误响应
func RespondErrorDetail(w http.ResponseWriter, status int, message string, err error) {
	body := ErrorBody{Error: message}
	if err != nil {
		body.Message = err.Error()
	}
	RespondJSON(w, status, body)
}
