package models

import "time"

// Course is the slice of a catalog course that checkout and enrollment need.
// EnrolledStudents mirrors the enrollments table and may briefly lag it.
type Course struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	TutorID          string    `json:"tutor"`
	Price            int64     `json:"price"`
	IsPublished      bool      `json:"isPublished"`
	TotalLectures    int       `json:"totalLectures"`
	EnrolledStudents []string  `json:"enrolledStudents"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// IsFree reports whether students can enroll without paying.
func (c *Course) IsFree() bool {
	return c.Price == 0
}
