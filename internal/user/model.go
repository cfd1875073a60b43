package user

import "agency-chat/internal/model"

type User struct {
	ID       string     `json:"id"`
	Username string     `json:"username"`
	Password string     `json:"-"`
	Role     model.Role `json:"role"`
}

func (u *User) Actor() model.Actor {
	return model.Actor{ID: u.ID, Username: u.Username, Role: u.Role}
}

// UserWithStats is the admin view of a user.
type UserWithStats struct {
	User
	ProjectCount int `json:"project_count"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string     `json:"access_token"`
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Role        model.Role `json:"role"`
}

type RoleRequest struct {
	Role model.Role `json:"role"`
}
