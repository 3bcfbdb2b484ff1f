package attendance

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"otpattend/internal/auth"
	"otpattend/internal/store"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixedCodes struct {
	codes []string
	i     int
}

func (f *fixedCodes) Next() (string, error) {
	if f.i >= len(f.codes) {
		return "", errors.New("out of codes")
	}
	c := f.codes[f.i]
	f.i++
	return c, nil
}

type fixture struct {
	db    *store.DB
	svc   *Service
	clock *fakeClock
	codes *fixedCodes
}

func newFixture(t *testing.T, codes ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "attendance.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	clock := &fakeClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	gen := &fixedCodes{codes: codes}
	svc := NewService(NewRepository(db), 60*time.Second,
		WithClock(clock.Now), WithCodeGenerator(gen.Next))
	return &fixture{db: db, svc: svc, clock: clock, codes: gen}
}

func (f *fixture) mustClass(t *testing.T, name, code string) Class {
	t.Helper()
	c, err := f.svc.CreateClass(context.Background(), name, "Science", code)
	if err != nil {
		t.Fatalf("CreateClass(%s): %v", code, err)
	}
	return c
}

func (f *fixture) mustTeacher(t *testing.T, email string, classIDs ...int64) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.Register(ctx, Registration{
		Email: email, Password: "pw", Name: "Teacher " + email, Role: auth.RoleTeacher, Department: "Science",
	})
	if err != nil {
		t.Fatalf("register teacher: %v", err)
	}
	for _, id := range classIDs {
		if err := f.svc.AssignTeacher(ctx, email, id); err != nil {
			t.Fatalf("assign teacher: %v", err)
		}
	}
}

func (f *fixture) mustStudent(t *testing.T, email, classCode string) {
	t.Helper()
	_, err := f.svc.Register(context.Background(), Registration{
		Email: email, Password: "pw", Name: "Student " + email, Role: auth.RoleStudent, ClassCode: classCode,
	})
	if err != nil {
		t.Fatalf("register student: %v", err)
	}
}

func (f *fixture) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	if err := f.db.Client.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestIssueOTPKeepsOneRowPerClass(t *testing.T) {
	f := newFixture(t, "111111", "222222", "333333", "444444")
	ctx := context.Background()
	c1 := f.mustClass(t, "Physics", "PHY")
	c2 := f.mustClass(t, "Chemistry", "CHE")
	f.mustTeacher(t, "t@school.local", c1.ID, c2.ID)

	// Stale leftovers from an older process must be cleared too.
	for i := 0; i < 3; i++ {
		if _, err := f.db.Client.Exec(`INSERT INTO otp (code, class_id, created_time, created_by) VALUES (?, ?, ?, ?)`,
			fmt.Sprintf("90000%d", i), c1.ID, int64(i), "t@school.local"); err != nil {
			t.Fatalf("insert stale otp: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		if _, err := f.svc.IssueOTP(ctx, "t@school.local", c1.ID); err != nil {
			t.Fatalf("IssueOTP: %v", err)
		}
		if n := f.count(t, `SELECT COUNT(*) FROM otp WHERE class_id = ?`, c1.ID); n != 1 {
			t.Fatalf("after issue %d: %d rows for class, want 1", i+1, n)
		}
	}
	issued, err := f.svc.IssueOTP(ctx, "t@school.local", c2.ID)
	if err != nil {
		t.Fatalf("IssueOTP c2: %v", err)
	}
	if issued.Code != "444444" || issued.ExpiresAt != issued.CreatedTime+60 {
		t.Errorf("issued = %+v", issued)
	}
	if n := f.count(t, `SELECT COUNT(*) FROM otp`); n != 2 {
		t.Errorf("total otp rows = %d, want 2 (one per class)", n)
	}
}

func TestIssueOTPRequiresAssignment(t *testing.T) {
	f := newFixture(t, "123456")
	c := f.mustClass(t, "Biology", "BIO")
	f.mustTeacher(t, "t@school.local")

	_, err := f.svc.IssueOTP(context.Background(), "t@school.local", c.ID)
	if !errors.Is(err, ErrNotAssigned) {
		t.Fatalf("err = %v, want ErrNotAssigned", err)
	}
	_, err = f.svc.IssueOTP(context.Background(), "t@school.local", 9999)
	if !errors.Is(err, ErrClassNotFound) {
		t.Fatalf("missing class: err = %v, want ErrClassNotFound", err)
	}
	if n := f.count(t, `SELECT COUNT(*) FROM otp`); n != 0 {
		t.Errorf("otp rows = %d, want 0", n)
	}
}

func TestRedeemWithinWindow(t *testing.T) {
	f := newFixture(t, "482913")
	ctx := context.Background()
	c := f.mustClass(t, "Maths", "MATH")
	f.mustTeacher(t, "t@school.local", c.ID)
	f.mustStudent(t, "s@school.local", "MATH")

	if _, err := f.svc.IssueOTP(ctx, "t@school.local", c.ID); err != nil {
		t.Fatalf("IssueOTP: %v", err)
	}
	f.clock.Advance(40 * time.Second)

	rec, err := f.svc.RedeemOTP(ctx, "s@school.local", "482913")
	if err != nil {
		t.Fatalf("RedeemOTP: %v", err)
	}
	if rec.Email != "s@school.local" || rec.ClassID != c.ID || rec.Timestamp != f.clock.Now().Unix() {
		t.Errorf("record = %+v", rec)
	}
	if n := f.count(t, `SELECT COUNT(*) FROM attendance WHERE email = ? AND class_id = ?`, "s@school.local", c.ID); n != 1 {
		t.Errorf("attendance rows = %d, want 1", n)
	}
}

func TestRedeemAfterWindowIsRejected(t *testing.T) {
	f := newFixture(t, "482913")
	ctx := context.Background()
	c := f.mustClass(t, "Maths", "MATH")
	f.mustTeacher(t, "t@school.local", c.ID)
	f.mustStudent(t, "s@school.local", "MATH")

	if _, err := f.svc.IssueOTP(ctx, "t@school.local", c.ID); err != nil {
		t.Fatalf("IssueOTP: %v", err)
	}
	f.clock.Advance(75 * time.Second)

	if _, err := f.svc.RedeemOTP(ctx, "s@school.local", "482913"); !errors.Is(err, ErrInvalidOrExpiredOTP) {
		t.Fatalf("err = %v, want ErrInvalidOrExpiredOTP", err)
	}
	if n := f.count(t, `SELECT COUNT(*) FROM attendance`); n != 0 {
		t.Errorf("attendance rows = %d, want 0", n)
	}
}

func TestRedeemBoundaryAndWrongCode(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		code    string
		wantErr error
	}{
		{"exactly at window", 60 * time.Second, "654321", nil},
		{"one second late", 61 * time.Second, "654321", ErrInvalidOrExpiredOTP},
		{"wrong code in time", 5 * time.Second, "654320", ErrInvalidOrExpiredOTP},
		{"code with spaces", 5 * time.Second, " 654321 ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "654321")
			ctx := context.Background()
			c := f.mustClass(t, "Art", "ART")
			f.mustTeacher(t, "t@school.local", c.ID)
			f.mustStudent(t, "s@school.local", "ART")
			if _, err := f.svc.IssueOTP(ctx, "t@school.local", c.ID); err != nil {
				t.Fatalf("IssueOTP: %v", err)
			}
			f.clock.Advance(tt.elapsed)

			_, err := f.svc.RedeemOTP(ctx, "s@school.local", tt.code)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRedeemUsesNewestCode(t *testing.T) {
	f := newFixture(t, "111111", "222222")
	ctx := context.Background()
	c := f.mustClass(t, "History", "HIS")
	f.mustTeacher(t, "t@school.local", c.ID)
	f.mustStudent(t, "s@school.local", "HIS")

	if _, err := f.svc.IssueOTP(ctx, "t@school.local", c.ID); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(10 * time.Second)
	if _, err := f.svc.IssueOTP(ctx, "t@school.local", c.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.RedeemOTP(ctx, "s@school.local", "111111"); !errors.Is(err, ErrInvalidOrExpiredOTP) {
		t.Fatalf("superseded code: err = %v", err)
	}
	if _, err := f.svc.RedeemOTP(ctx, "s@school.local", "222222"); err != nil {
		t.Fatalf("current code: %v", err)
	}
}

func TestRedeemWithoutOTP(t *testing.T) {
	f := newFixture(t)
	f.mustClass(t, "Music", "MUS")
	f.mustStudent(t, "s@school.local", "MUS")

	if _, err := f.svc.RedeemOTP(context.Background(), "s@school.local", "123456"); !errors.Is(err, ErrInvalidOrExpiredOTP) {
		t.Fatalf("err = %v, want ErrInvalidOrExpiredOTP", err)
	}
}

func TestRedeemRequiresEnrollment(t *testing.T) {
	f := newFixture(t, "482913")
	ctx := context.Background()
	c := f.mustClass(t, "Maths", "MATH")
	f.mustTeacher(t, "t@school.local", c.ID)
	if _, err := f.svc.IssueOTP(ctx, "t@school.local", c.ID); err != nil {
		t.Fatal(err)
	}

	// The teacher has no student profile, so it is not enrolled anywhere.
	if _, err := f.svc.RedeemOTP(ctx, "t@school.local", "482913"); !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("err = %v, want ErrNotEnrolled", err)
	}
	if _, err := f.svc.RedeemOTP(ctx, "ghost@school.local", "482913"); !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("unknown user: err = %v, want ErrNotEnrolled", err)
	}
}

func TestCodesAreScopedPerClass(t *testing.T) {
	f := newFixture(t, "777777", "777777")
	ctx := context.Background()
	c1 := f.mustClass(t, "Class One", "C1")
	c2 := f.mustClass(t, "Class Two", "C2")
	f.mustTeacher(t, "t@school.local", c1.ID)
	f.mustStudent(t, "s2@school.local", "C2")

	if _, err := f.svc.IssueOTP(ctx, "t@school.local", c1.ID); err != nil {
		t.Fatal(err)
	}
	// C2 has no live code: C1's code must not count for a C2 student.
	if _, err := f.svc.RedeemOTP(ctx, "s2@school.local", "777777"); !errors.Is(err, ErrInvalidOrExpiredOTP) {
		t.Fatalf("err = %v, want ErrInvalidOrExpiredOTP", err)
	}

	f.mustTeacher(t, "t2@school.local", c2.ID)
	if _, err := f.svc.IssueOTP(ctx, "t2@school.local", c2.ID); err != nil {
		t.Fatal(err)
	}
	rec, err := f.svc.RedeemOTP(ctx, "s2@school.local", "777777")
	if err != nil {
		t.Fatalf("own class code: %v", err)
	}
	if rec.ClassID != c2.ID {
		t.Errorf("marked in class %d, want %d", rec.ClassID, c2.ID)
	}
}

func TestResubmissionAppendsAnotherRecord(t *testing.T) {
	f := newFixture(t, "246810")
	ctx := context.Background()
	c := f.mustClass(t, "Maths", "MATH")
	f.mustTeacher(t, "t@school.local", c.ID)
	f.mustStudent(t, "s@school.local", "MATH")
	if _, err := f.svc.IssueOTP(ctx, "t@school.local", c.ID); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := f.svc.RedeemOTP(ctx, "s@school.local", "246810"); err != nil {
			t.Fatalf("redeem %d: %v", i+1, err)
		}
	}
	if n := f.count(t, `SELECT COUNT(*) FROM attendance`); n != 2 {
		t.Errorf("attendance rows = %d, want 2", n)
	}
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustClass(t, "Maths", "MATH")

	tests := []struct {
		name    string
		in      Registration
		wantErr error
	}{
		{"student ok", Registration{Email: "S@School.local", Password: "pw", Name: "S", Role: auth.RoleStudent, ClassCode: "MATH"}, nil},
		{"duplicate email", Registration{Email: "s@school.local", Password: "pw", Name: "S2", Role: auth.RoleStudent, ClassCode: "MATH"}, ErrUserExists},
		{"student without code", Registration{Email: "a@school.local", Password: "pw", Name: "A", Role: auth.RoleStudent}, ErrClassCodeRequired},
		{"student bad code", Registration{Email: "b@school.local", Password: "pw", Name: "B", Role: auth.RoleStudent, ClassCode: "NOPE"}, ErrInvalidClassCode},
		{"teacher without dept", Registration{Email: "c@school.local", Password: "pw", Name: "C", Role: auth.RoleTeacher}, ErrDeptRequired},
		{"teacher ok", Registration{Email: "d@school.local", Password: "pw", Name: "D", Role: auth.RoleTeacher, Department: "Science"}, nil},
		{"admin self registration", Registration{Email: "e@school.local", Password: "pw", Name: "E", Role: auth.RoleAdmin}, ErrInvalidRole},
		{"missing password", Registration{Email: "f@school.local", Name: "F", Role: auth.RoleTeacher, Department: "X"}, ErrMissingFields},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// A failed student registration must not leave a dangling user behind.
	if n := f.count(t, `SELECT COUNT(*) FROM users WHERE email = ?`, "b@school.local"); n != 0 {
		t.Errorf("users rows for rejected registration = %d", n)
	}
	profile, err := f.svc.StudentProfile(ctx, "s@school.local")
	if err != nil {
		t.Fatalf("StudentProfile: %v", err)
	}
	if profile.Class.Code != "MATH" {
		t.Errorf("enrolled in %q, want MATH", profile.Class.Code)
	}
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustClass(t, "Maths", "MATH")
	f.mustStudent(t, "s@school.local", "MATH")

	p, err := f.svc.Authenticate(ctx, "s@school.local", "pw", "student")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.Email != "s@school.local" || p.Role != auth.RoleStudent {
		t.Errorf("principal = %+v", p)
	}

	for _, tc := range []struct{ email, password, role string }{
		{"s@school.local", "wrong", "student"},
		{"s@school.local", "pw", "teacher"},
		{"s@school.local", "pw", "superuser"},
		{"nobody@school.local", "pw", "student"},
	} {
		if _, err := f.svc.Authenticate(ctx, tc.email, tc.password, tc.role); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Authenticate(%+v) err = %v, want ErrInvalidCredentials", tc, err)
		}
	}
}

func TestCreateClassDuplicateCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.CreateClass(ctx, "Maths", "Science", "MATH"); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := f.svc.CreateClass(ctx, "Maths 2", "Science", "MATH"); !errors.Is(err, ErrClassCodeExists) {
		t.Fatalf("second: err = %v, want ErrClassCodeExists", err)
	}
	if _, err := f.svc.CreateClass(ctx, "", "Science", "X"); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("empty name: err = %v, want ErrMissingFields", err)
	}
}

func TestScheduleOrderingAndValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.mustClass(t, "Maths", "MATH")

	for _, slot := range [][3]string{
		{"friday", "08:00", "09:00"},
		{"Monday", "13:00", "14:00"},
		{"Sunday", "10:00", "11:00"},
		{"Monday", "09:00", "10:00"},
		{"Wednesday", "9:30", "10:30"},
	} {
		if _, err := f.svc.AddSchedule(ctx, c.ID, slot[0], slot[1], slot[2]); err != nil {
			t.Fatalf("AddSchedule(%v): %v", slot, err)
		}
	}
	sched, err := f.svc.ListSchedule(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListSchedule: %v", err)
	}
	var got []string
	for _, e := range sched.Entries {
		got = append(got, e.Day+" "+e.StartTime)
	}
	want := []string{"Monday 09:00", "Monday 13:00", "Wednesday 09:30", "Friday 08:00", "Sunday 10:00"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", got, want)
	}

	if _, err := f.svc.AddSchedule(ctx, c.ID, "Funday", "09:00", "10:00"); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("bad day: err = %v", err)
	}
	if _, err := f.svc.AddSchedule(ctx, c.ID, "Monday", "10:00", "09:00"); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("end before start: err = %v", err)
	}
	if _, err := f.svc.AddSchedule(ctx, 4242, "Monday", "09:00", "10:00"); !errors.Is(err, ErrClassNotFound) {
		t.Errorf("missing class: err = %v", err)
	}
	if _, err := f.svc.ListSchedule(ctx, 4242); !errors.Is(err, ErrClassNotFound) {
		t.Errorf("list missing class: err = %v", err)
	}
}

func TestAssignTeacher(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.mustClass(t, "Maths", "MATH")
	f.mustTeacher(t, "t@school.local")
	f.mustStudent(t, "s@school.local", "MATH")

	for i := 0; i < 2; i++ {
		if err := f.svc.AssignTeacher(ctx, "t@school.local", c.ID); err != nil {
			t.Fatalf("assign %d: %v", i+1, err)
		}
	}
	if n := f.count(t, `SELECT COUNT(*) FROM teacher_classes`); n != 1 {
		t.Errorf("assignments = %d, want 1", n)
	}
	if err := f.svc.AssignTeacher(ctx, "s@school.local", c.ID); !errors.Is(err, ErrTeacherNotFound) {
		t.Errorf("student as teacher: err = %v", err)
	}
	if err := f.svc.AssignTeacher(ctx, "ghost@school.local", c.ID); !errors.Is(err, ErrTeacherNotFound) {
		t.Errorf("unknown email: err = %v", err)
	}
	if err := f.svc.AssignTeacher(ctx, "t@school.local", 999); !errors.Is(err, ErrClassNotFound) {
		t.Errorf("unknown class: err = %v", err)
	}

	teachers, err := f.svc.ListTeachers(ctx)
	if err != nil {
		t.Fatalf("ListTeachers: %v", err)
	}
	if len(teachers) != 1 || len(teachers[0].Classes) != 1 || teachers[0].Classes[0].ID != c.ID {
		t.Errorf("teachers = %+v", teachers)
	}
}

func TestClassRoster(t *testing.T) {
	f := newFixture(t, "135790")
	ctx := context.Background()
	c := f.mustClass(t, "Maths", "MATH")
	other := f.mustClass(t, "Art", "ART")
	f.mustTeacher(t, "t@school.local", c.ID)
	f.mustStudent(t, "a@school.local", "MATH")
	f.mustStudent(t, "b@school.local", "MATH")

	if _, err := f.svc.ClassRoster(ctx, "t@school.local", other.ID); !errors.Is(err, ErrNotAssigned) {
		t.Fatalf("foreign class: err = %v", err)
	}

	if _, err := f.svc.IssueOTP(ctx, "t@school.local", c.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.RedeemOTP(ctx, "a@school.local", "135790"); err != nil {
		t.Fatal(err)
	}
	roster, err := f.svc.ClassRoster(ctx, "t@school.local", c.ID)
	if err != nil {
		t.Fatalf("ClassRoster: %v", err)
	}
	if len(roster.Students) != 2 {
		t.Fatalf("students = %d, want 2", len(roster.Students))
	}
	present := map[string]bool{}
	for _, s := range roster.Students {
		present[s.Email] = s.PresentToday
	}
	if !present["a@school.local"] || present["b@school.local"] {
		t.Errorf("present = %v", present)
	}
	if roster.ActiveOTP == nil || roster.ActiveOTP.Code != "135790" {
		t.Errorf("active otp = %+v", roster.ActiveOTP)
	}

	f.clock.Advance(2 * time.Minute)
	roster, err = f.svc.ClassRoster(ctx, "t@school.local", c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if roster.ActiveOTP != nil {
		t.Errorf("expired code still shown: %+v", roster.ActiveOTP)
	}
}

func TestStudentViews(t *testing.T) {
	f := newFixture(t, "112233")
	ctx := context.Background()
	c := f.mustClass(t, "Maths", "MATH")
	f.mustTeacher(t, "t@school.local", c.ID)
	f.mustStudent(t, "s@school.local", "MATH")
	if _, err := f.svc.AddSchedule(ctx, c.ID, "Tuesday", "11:00", "12:00"); err != nil {
		t.Fatal(err)
	}

	sched, err := f.svc.StudentSchedule(ctx, "s@school.local")
	if err != nil {
		t.Fatalf("StudentSchedule: %v", err)
	}
	if sched.Class.ID != c.ID || len(sched.Entries) != 1 {
		t.Errorf("schedule = %+v", sched)
	}

	if _, err := f.svc.IssueOTP(ctx, "t@school.local", c.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.RedeemOTP(ctx, "s@school.local", "112233"); err != nil {
		t.Fatal(err)
	}
	history, err := f.svc.StudentAttendance(ctx, "s@school.local", 0)
	if err != nil {
		t.Fatalf("StudentAttendance: %v", err)
	}
	if len(history) != 1 || history[0].ClassName != "Maths" || history[0].StudentName == "" {
		t.Errorf("history = %+v", history)
	}

	recent, err := f.svc.RecentAttendance(ctx, 500)
	if err != nil {
		t.Fatalf("RecentAttendance: %v", err)
	}
	if len(recent) != 1 {
		t.Errorf("recent = %+v", recent)
	}

	for name, call := range map[string]func() error{
		"profile":    func() error { _, err := f.svc.StudentProfile(ctx, "t@school.local"); return err },
		"schedule":   func() error { _, err := f.svc.StudentSchedule(ctx, "t@school.local"); return err },
		"attendance": func() error { _, err := f.svc.StudentAttendance(ctx, "t@school.local", 10); return err },
	} {
		if err := call(); !errors.Is(err, ErrNotEnrolled) {
			t.Errorf("%s for unenrolled user: err = %v", name, err)
		}
	}
}

func TestPurgeExpiredOTPs(t *testing.T) {
	f := newFixture(t, "100001", "100002")
	ctx := context.Background()
	c1 := f.mustClass(t, "One", "ONE")
	c2 := f.mustClass(t, "Two", "TWO")
	f.mustTeacher(t, "t@school.local", c1.ID, c2.ID)

	if _, err := f.svc.IssueOTP(ctx, "t@school.local", c1.ID); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(90 * time.Second)
	if _, err := f.svc.IssueOTP(ctx, "t@school.local", c2.ID); err != nil {
		t.Fatal(err)
	}

	n, err := f.svc.PurgeExpiredOTPs(ctx)
	if err != nil {
		t.Fatalf("PurgeExpiredOTPs: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
	if left := f.count(t, `SELECT COUNT(*) FROM otp WHERE class_id = ?`, c2.ID); left != 1 {
		t.Errorf("live code of class two was purged")
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg := SeedConfig{AdminEmail: "admin@school.local", AdminPassword: "admin123"}

	for i := 0; i < 3; i++ {
		if err := f.svc.Seed(ctx, cfg); err != nil {
			t.Fatalf("Seed run %d: %v", i+1, err)
		}
	}
	if n := f.count(t, `SELECT COUNT(*) FROM users WHERE role = 'admin'`); n != 1 {
		t.Errorf("admins = %d, want 1", n)
	}
	if n := f.count(t, `SELECT COUNT(*) FROM classes WHERE class_code = ?`, DefaultClass.Code); n != 1 {
		t.Errorf("default classes = %d, want 1", n)
	}
	if n := f.count(t, `SELECT COUNT(*) FROM class_schedule`); n != len(defaultSchedule) {
		t.Errorf("schedule rows = %d, want %d", n, len(defaultSchedule))
	}
	if _, err := f.svc.Authenticate(ctx, "admin@school.local", "admin123", "admin"); err != nil {
		t.Errorf("seeded admin cannot log in: %v", err)
	}
}

func TestRandomCodeRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		code, err := RandomCode()
		if err != nil {
			t.Fatalf("RandomCode: %v", err)
		}
		if len(code) != 6 || code[0] == '0' {
			t.Fatalf("code %q is not a 6 digit number without leading zero", code)
		}
	}
}

func TestConcurrentIssueKeepsOneRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.mustClass(t, "Maths", "MATH")
	f.mustTeacher(t, "t@school.local", c.ID)
	svc := NewService(NewRepository(f.db), 60*time.Second, WithClock(f.clock.Now))

	const n = 20
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.IssueOTP(ctx, "t@school.local", c.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("IssueOTP: %v", err)
		}
	}
	if rows := f.count(t, `SELECT COUNT(*) FROM otp WHERE class_id = ?`, c.ID); rows != 1 {
		t.Errorf("otp rows = %d, want 1", rows)
	}
}

func TestConcurrentRedeemMarksEveryStudent(t *testing.T) {
	f := newFixture(t, "482913")
	ctx := context.Background()
	c := f.mustClass(t, "Maths", "MATH")
	f.mustTeacher(t, "t@school.local", c.ID)

	const n = 30
	emails := make([]string, n)
	for i := range emails {
		emails[i] = fmt.Sprintf("s%02d@school.local", i)
		f.mustStudent(t, emails[i], "MATH")
	}
	if _, err := f.svc.IssueOTP(ctx, "t@school.local", c.ID); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(10 * time.Second)

	errs := make(chan error, n)
	var wg sync.WaitGroup
	for _, email := range emails {
		wg.Add(1)
		go func(email string) {
			defer wg.Done()
			_, err := f.svc.RedeemOTP(ctx, email, "482913")
			errs <- err
		}(email)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("RedeemOTP: %v", err)
		}
	}
	if rows := f.count(t, `SELECT COUNT(*) FROM attendance WHERE class_id = ?`, c.ID); rows != n {
		t.Errorf("attendance rows = %d, want %d", rows, n)
	}
}
