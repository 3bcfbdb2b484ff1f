package attendance

import (
	"time"

	"otpattend/internal/auth"
)

// User is a registered account. Role never changes after creation.
type User struct {
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         auth.Role `json:"role"`
	PasswordHash string    `json:"-"`
}

// Class is a taught group students enroll in with its class code.
type Class struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Code       string `json:"class_code"`
}

// ScheduleEntry is one weekly slot of a class.
type ScheduleEntry struct {
	ID        int64  `json:"id"`
	ClassID   int64  `json:"class_id"`
	Day       string `json:"day"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// ClassSchedule is a class with its weekly slots in weekday order.
type ClassSchedule struct {
	Class   Class           `json:"class"`
	Entries []ScheduleEntry `json:"entries"`
}

// OTP is the live one-time code of a class.
type OTP struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	ClassID     int64  `json:"class_id"`
	CreatedTime int64  `json:"created_time"`
	CreatedBy   string `json:"created_by"`
}

// IssuedOTP is what a teacher gets back after generating a code.
type IssuedOTP struct {
	OTP
	ExpiresAt int64 `json:"expires_at"`
}

// Record is one attendance mark. Records are never updated or deleted.
type Record struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	ClassID   int64  `json:"class_id"`
	Timestamp int64  `json:"timestamp"`
}

// Time returns the mark time.
func (r Record) Time() time.Time { return time.Unix(r.Timestamp, 0) }

// RecordView is a Record joined with the student and class names.
type RecordView struct {
	Record
	StudentName string `json:"student_name"`
	ClassName   string `json:"class_name"`
}

// Teacher is a teacher account with its profile and assigned classes.
type Teacher struct {
	Email      string  `json:"email"`
	Name       string  `json:"name"`
	Department string  `json:"department"`
	Classes    []Class `json:"classes"`
}

// StudentProfile is a student account with the class it is enrolled in.
type StudentProfile struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Class Class  `json:"class"`
}

// RosterEntry is an enrolled student and their latest mark today, if any.
type RosterEntry struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	PresentToday bool   `json:"present_today"`
	LastMarked   int64  `json:"last_marked,omitempty"`
}

// Roster is the teacher's view of one class.
type Roster struct {
	Class     Class         `json:"class"`
	Students  []RosterEntry `json:"students"`
	ActiveOTP *IssuedOTP    `json:"active_otp,omitempty"`
}

// Registration is the input of Service.Register.
type Registration struct {
	Email      string
	Password   string
	Name       string
	Role       auth.Role
	ClassCode  string
	Department string
}
