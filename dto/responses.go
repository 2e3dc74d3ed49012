package dto

const (
	StatusSuccess = "success"
	StatusWarning = "warning"
	StatusError   = "error"
)

// ActionResponse is the structured status every exposed operation returns.
type ActionResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func Success(message, details string) ActionResponse {
	return ActionResponse{Status: StatusSuccess, Message: message, Details: details}
}

func Warning(message, details string) ActionResponse {
	return ActionResponse{Status: StatusWarning, Message: message, Details: details}
}

func Error(message, details string) ActionResponse {
	return ActionResponse{Status: StatusError, Message: message, Details: details}
}
