package dto

// CreateCourseRequest represents a request to create a new course.
// Semester and Credits are pointers so a present zero is distinguishable from
// an omitted field.
type CreateCourseRequest struct {
	Program       string   `json:"program" binding:"required" example:"CS"`
	Semester      *int     `json:"semester" binding:"required" example:"3"`
	Code          string   `json:"code" binding:"required" example:"CS301"`
	Title         string   `json:"title" binding:"required" example:"Algorithms"`
	Credits       *int     `json:"credits" binding:"required" example:"4"`
	Prerequisites []string `json:"prerequisites,omitempty"`
}

// UpdateCourseRequest represents a partial update to an existing course.
// Only fields present in the body overwrite the stored record.
type UpdateCourseRequest struct {
	Code          *string   `json:"code,omitempty"`
	Program       *string   `json:"program,omitempty"`
	Title         *string   `json:"title,omitempty"`
	Semester      *int      `json:"semester,omitempty"`
	Credits       *int      `json:"credits,omitempty"`
	Prerequisites *[]string `json:"prerequisites,omitempty"`
}
