package domain

import "time"

// User es la identidad de un usuario ya autenticado. Este servicio solo la lee.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Name devuelve el nombre a mostrar en el chat.
func (u User) Name() string {
	if u.Username != "" {
		return u.Username
	}
	return u.DisplayName
}
