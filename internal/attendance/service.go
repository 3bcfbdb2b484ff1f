package attendance

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"otpattend/internal/auth"
	"otpattend/internal/metrics"
)

// MaxListing caps every attendance listing.
const MaxListing = 200

// Service implements registration, login, code issuance and redemption.
type Service struct {
	repo   *Repository
	window time.Duration
	now    func() time.Time
	codes  CodeGenerator
	log    *zap.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCodeGenerator replaces RandomCode.
func WithCodeGenerator(gen CodeGenerator) Option {
	return func(s *Service) { s.codes = gen }
}

// WithLogger sets the logger used for audit lines.
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

// NewService creates a service backed by a repository. window is how long
// a code stays redeemable after it was issued.
func NewService(repo *Repository, window time.Duration, opts ...Option) *Service {
	if window <= 0 {
		window = 60 * time.Second
	}
	s := &Service{
		repo:   repo,
		window: window,
		now:    time.Now,
		codes:  RandomCode,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Window returns the configured validity window.
func (s *Service) Window() time.Duration { return s.window }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ---------- Registration & login ----------

// Register creates a teacher or student account together with its profile.
// Students join the class whose code they supply.
func (s *Service) Register(ctx context.Context, in Registration) (User, error) {
	u := User{
		Email: normalizeEmail(in.Email),
		Name:  strings.TrimSpace(in.Name),
		Role:  in.Role,
	}
	if u.Email == "" || in.Password == "" || u.Name == "" {
		return User{}, ErrMissingFields
	}
	classCode := strings.TrimSpace(in.ClassCode)
	dept := strings.TrimSpace(in.Department)

	switch u.Role {
	case auth.RoleStudent:
		if classCode == "" {
			return User{}, ErrClassCodeRequired
		}
	case auth.RoleTeacher:
		if dept == "" {
			return User{}, ErrDeptRequired
		}
	case auth.RoleAdmin:
		// Admins are seeded, never self-registered.
		return User{}, ErrInvalidRole
	default:
		return User{}, ErrInvalidRole
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = hash

	err = s.repo.InTx(ctx, func(tx *Repository) error {
		var class *Class
		if u.Role == auth.RoleStudent {
			c, err := tx.GetClassByCode(ctx, classCode)
			if err != nil {
				return err
			}
			if c == nil {
				return ErrInvalidClassCode
			}
			class = c
		}
		if err := tx.CreateUser(ctx, u); err != nil {
			if errors.Is(err, ErrDuplicateKey) {
				return ErrUserExists
			}
			return err
		}
		if class != nil {
			return tx.CreateStudentProfile(ctx, u.Email, class.ID)
		}
		return tx.CreateTeacherProfile(ctx, u.Email, dept)
	})
	if err != nil {
		return User{}, err
	}
	s.log.Info("user registered", zap.String("email", u.Email), zap.String("role", string(u.Role)))
	return u, nil
}

// Authenticate checks email, password and claimed role together. Any
// mismatch yields ErrInvalidCredentials without saying which one.
func (s *Service) Authenticate(ctx context.Context, email, password, claimedRole string) (auth.Principal, error) {
	role, err := auth.ParseRole(strings.TrimSpace(claimedRole))
	if err != nil {
		return auth.Principal{}, ErrInvalidCredentials
	}
	u, err := s.repo.GetUser(ctx, normalizeEmail(email))
	if err != nil {
		return auth.Principal{}, err
	}
	if u == nil || !auth.CheckPassword(u.PasswordHash, password) || u.Role != role {
		return auth.Principal{}, ErrInvalidCredentials
	}
	return auth.Principal{Email: u.Email, Role: u.Role}, nil
}

// ---------- OTP ----------

// IssueOTP generates a new code for a class the teacher is assigned to.
// Any previous code of the class is removed in the same transaction. An
// unknown class yields ErrClassNotFound.
func (s *Service) IssueOTP(ctx context.Context, teacherEmail string, classID int64) (IssuedOTP, error) {
	teacherEmail = normalizeEmail(teacherEmail)
	code, err := s.codes()
	if err != nil {
		return IssuedOTP{}, fmt.Errorf("generate code: %w", err)
	}

	var otp OTP
	err = s.repo.InTx(ctx, func(tx *Repository) error {
		exists, err := tx.LockClass(ctx, classID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrClassNotFound
		}
		assigned, err := tx.IsAssigned(ctx, teacherEmail, classID)
		if err != nil {
			return err
		}
		if !assigned {
			return ErrNotAssigned
		}
		if _, err := tx.DeleteOTPs(ctx, classID); err != nil {
			return err
		}
		otp, err = tx.InsertOTP(ctx, OTP{
			Code:        code,
			ClassID:     classID,
			CreatedTime: s.now().Unix(),
			CreatedBy:   teacherEmail,
		})
		return err
	})
	if err != nil {
		return IssuedOTP{}, err
	}
	metrics.OTPIssued()
	s.log.Info("otp issued", zap.Int64("class_id", classID), zap.String("teacher", teacherEmail))
	return s.issued(otp), nil
}

func (s *Service) issued(o OTP) IssuedOTP {
	return IssuedOTP{OTP: o, ExpiresAt: o.CreatedTime + int64(s.window/time.Second)}
}

func (s *Service) expired(o OTP, now time.Time) bool {
	elapsed := time.Duration(now.Unix()-o.CreatedTime) * time.Second
	return elapsed > s.window
}

// RedeemOTP marks the student present when code matches the newest code of
// their class and is still inside the validity window.
func (s *Service) RedeemOTP(ctx context.Context, studentEmail, code string) (Record, error) {
	studentEmail = normalizeEmail(studentEmail)
	code = strings.TrimSpace(code)

	var rec Record
	err := s.repo.InTx(ctx, func(tx *Repository) error {
		class, err := tx.StudentClass(ctx, studentEmail)
		if err != nil {
			return err
		}
		if class == nil {
			return ErrNotEnrolled
		}
		latest, err := tx.LatestOTP(ctx, class.ID)
		if err != nil {
			return err
		}
		now := s.now()
		if latest == nil ||
			subtle.ConstantTimeCompare([]byte(code), []byte(latest.Code)) != 1 ||
			s.expired(*latest, now) {
			return ErrInvalidOrExpiredOTP
		}
		rec, err = tx.InsertAttendance(ctx, Record{
			Email:     studentEmail,
			ClassID:   class.ID,
			Timestamp: now.Unix(),
		})
		return err
	})
	switch {
	case err == nil:
		metrics.OTPRedeemed(metrics.ResultMarked)
		s.log.Info("attendance marked", zap.String("email", studentEmail), zap.Int64("class_id", rec.ClassID))
	case errors.Is(err, ErrNotEnrolled):
		metrics.OTPRedeemed(metrics.ResultNotEnrolled)
	case errors.Is(err, ErrInvalidOrExpiredOTP):
		metrics.OTPRedeemed(metrics.ResultRejected)
	}
	return rec, err
}

// PurgeExpiredOTPs deletes codes that can no longer be redeemed.
func (s *Service) PurgeExpiredOTPs(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.window).Unix()
	return s.repo.PurgeOTPsBefore(ctx, cutoff)
}

// ---------- Administration ----------

// CreateClass adds a class with a unique join code.
func (s *Service) CreateClass(ctx context.Context, name, dept, code string) (Class, error) {
	c := Class{
		Name:       strings.TrimSpace(name),
		Department: strings.TrimSpace(dept),
		Code:       strings.TrimSpace(code),
	}
	if c.Name == "" || c.Department == "" || c.Code == "" {
		return Class{}, ErrMissingFields
	}
	c, err := s.repo.CreateClass(ctx, c)
	if errors.Is(err, ErrDuplicateKey) {
		return Class{}, ErrClassCodeExists
	}
	return c, err
}

// ListClasses returns all classes.
func (s *Service) ListClasses(ctx context.Context) ([]Class, error) {
	return s.repo.ListClasses(ctx)
}

// GetClass returns one class or ErrClassNotFound.
func (s *Service) GetClass(ctx context.Context, id int64) (Class, error) {
	c, err := s.repo.GetClass(ctx, id)
	if err != nil {
		return Class{}, err
	}
	if c == nil {
		return Class{}, ErrClassNotFound
	}
	return *c, nil
}

// AddSchedule adds a weekly slot to an existing class.
func (s *Service) AddSchedule(ctx context.Context, classID int64, day, start, end string) (ScheduleEntry, error) {
	e, err := newScheduleEntry(classID, day, start, end)
	if err != nil {
		return ScheduleEntry{}, err
	}
	if _, err := s.GetClass(ctx, classID); err != nil {
		return ScheduleEntry{}, err
	}
	return s.repo.AddSchedule(ctx, e)
}

// ListSchedule returns a class with its slots in weekday order.
func (s *Service) ListSchedule(ctx context.Context, classID int64) (ClassSchedule, error) {
	c, err := s.GetClass(ctx, classID)
	if err != nil {
		return ClassSchedule{}, err
	}
	entries, err := s.repo.ListSchedule(ctx, classID)
	if err != nil {
		return ClassSchedule{}, err
	}
	return ClassSchedule{Class: c, Entries: entries}, nil
}

// AssignTeacher links a registered teacher to a class. Repeating an
// assignment is a no-op.
func (s *Service) AssignTeacher(ctx context.Context, email string, classID int64) error {
	email = normalizeEmail(email)
	return s.repo.InTx(ctx, func(tx *Repository) error {
		u, err := tx.GetUser(ctx, email)
		if err != nil {
			return err
		}
		if u == nil || u.Role != auth.RoleTeacher {
			return ErrTeacherNotFound
		}
		c, err := tx.GetClass(ctx, classID)
		if err != nil {
			return err
		}
		if c == nil {
			return ErrClassNotFound
		}
		return tx.AssignTeacher(ctx, email, classID)
	})
}

// ListTeachers returns every teacher with their classes.
func (s *Service) ListTeachers(ctx context.Context) ([]Teacher, error) {
	return s.repo.ListTeachers(ctx)
}

// RecentAttendance returns up to limit newest marks across all classes.
func (s *Service) RecentAttendance(ctx context.Context, limit int) ([]RecordView, error) {
	return s.repo.RecentAttendance(ctx, clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxListing {
		return MaxListing
	}
	return limit
}

// ---------- Teacher views ----------

// TeacherProfile returns the teacher's profile and classes.
func (s *Service) TeacherProfile(ctx context.Context, email string) (Teacher, error) {
	t, err := s.repo.GetTeacher(ctx, normalizeEmail(email))
	if err != nil {
		return Teacher{}, err
	}
	if t == nil {
		return Teacher{}, ErrTeacherNotFound
	}
	return *t, nil
}

// TeacherClasses returns the classes assigned to the teacher.
func (s *Service) TeacherClasses(ctx context.Context, email string) ([]Class, error) {
	return s.repo.TeacherClasses(ctx, normalizeEmail(email))
}

// ClassRoster lists the students of one of the teacher's classes with
// today's marks and the live code, if any.
func (s *Service) ClassRoster(ctx context.Context, teacherEmail string, classID int64) (Roster, error) {
	teacherEmail = normalizeEmail(teacherEmail)
	assigned, err := s.repo.IsAssigned(ctx, teacherEmail, classID)
	if err != nil {
		return Roster{}, err
	}
	if !assigned {
		return Roster{}, ErrNotAssigned
	}
	c, err := s.GetClass(ctx, classID)
	if err != nil {
		return Roster{}, err
	}
	students, err := s.repo.ListStudents(ctx, classID)
	if err != nil {
		return Roster{}, err
	}
	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	marks, err := s.repo.LastMarksSince(ctx, classID, midnight.Unix())
	if err != nil {
		return Roster{}, err
	}

	roster := Roster{Class: c, Students: make([]RosterEntry, 0, len(students))}
	for _, st := range students {
		last, ok := marks[st.Email]
		roster.Students = append(roster.Students, RosterEntry{
			Email:        st.Email,
			Name:         st.Name,
			PresentToday: ok,
			LastMarked:   last,
		})
	}
	latest, err := s.repo.LatestOTP(ctx, classID)
	if err != nil {
		return Roster{}, err
	}
	if latest != nil && !s.expired(*latest, now) {
		issued := s.issued(*latest)
		roster.ActiveOTP = &issued
	}
	return roster, nil
}

// ---------- Student views ----------

// StudentProfile returns the student and the class they are enrolled in.
func (s *Service) StudentProfile(ctx context.Context, email string) (StudentProfile, error) {
	email = normalizeEmail(email)
	u, err := s.repo.GetUser(ctx, email)
	if err != nil {
		return StudentProfile{}, err
	}
	c, err := s.repo.StudentClass(ctx, email)
	if err != nil {
		return StudentProfile{}, err
	}
	if u == nil || c == nil {
		return StudentProfile{}, ErrNotEnrolled
	}
	return StudentProfile{Email: u.Email, Name: u.Name, Class: *c}, nil
}

// StudentSchedule returns the weekly schedule of the student's class.
func (s *Service) StudentSchedule(ctx context.Context, email string) (ClassSchedule, error) {
	c, err := s.repo.StudentClass(ctx, normalizeEmail(email))
	if err != nil {
		return ClassSchedule{}, err
	}
	if c == nil {
		return ClassSchedule{}, ErrNotEnrolled
	}
	entries, err := s.repo.ListSchedule(ctx, c.ID)
	if err != nil {
		return ClassSchedule{}, err
	}
	return ClassSchedule{Class: *c, Entries: entries}, nil
}

// StudentAttendance returns up to limit of the student's newest marks.
func (s *Service) StudentAttendance(ctx context.Context, email string, limit int) ([]RecordView, error) {
	email = normalizeEmail(email)
	c, err := s.repo.StudentClass(ctx, email)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotEnrolled
	}
	return s.repo.StudentAttendance(ctx, email, clampLimit(limit))
}
