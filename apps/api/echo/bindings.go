package echoapi

import "github.com/tqwops/fieldops/core/user"

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		User       user.User `json:"user"`
		RedirectTo string    `json:"redirectTo"`
	}

	MeResponse struct {
		User user.User `json:"user"`
	}

	// PingResponse carries exactly one of the three session flags.
	PingResponse struct {
		SessionActive  bool `json:"sessionActive,omitempty"`
		SessionExpired bool `json:"sessionExpired,omitempty"`
		SessionKicked  bool `json:"sessionKicked,omitempty"`
	}

	TicketResponse struct {
		Ticket string `json:"ticket"`
	}

	CountResponse struct {
		Count int `json:"count"`
	}

	SuccessResponse struct {
		Success bool `json:"success"`
	}
)
