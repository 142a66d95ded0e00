package models

// Course represents a course record held in the key-value store.
type Course struct {
	ID            string   `json:"id"`
	Code          string   `json:"code"`
	Program       string   `json:"program"`
	Title         string   `json:"title"`
	Semester      int      `json:"semester"`
	Credits       int      `json:"credits"`
	Prerequisites []string `json:"prerequisites"`
}
