package domain

type GroupID string

type Group struct {
	ID      GroupID  `json:"id"`
	Name    string   `json:"name"`
	Members []UserID `json:"members"`
}
