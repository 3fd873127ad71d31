package model

// Response field names follow the public API contract (UserData, AccessToken,
// RefreshToken) rather than Go-style lower camel case.

type AuthResponse struct {
	Message      string     `json:"message"`
	UserData     PublicUser `json:"UserData"`
	AccessToken  string     `json:"AccessToken"`
	RefreshToken string     `json:"RefreshToken"`
}

type RefreshResponse struct {
	AccessToken string `json:"AccessToken"`
}

type LogoutResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

type MeResponse struct {
	Message  string     `json:"message"`
	UserData PublicUser `json:"UserData"`
}

type UserListResponse struct {
	Users []PublicUser `json:"users"`
	Total int          `json:"total"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   *APIError `json:"error"`
}
