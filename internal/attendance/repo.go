package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"otpattend/internal/auth"
	"otpattend/internal/store"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository persists users, classes, codes and attendance.
type Repository struct {
	db      *sql.DB
	q       querier
	dialect store.Dialect
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db.Client, q: db.Client, dialect: db.Dialect}
}

// InTx runs fn against a repository bound to a single transaction. Nested
// calls reuse the outer transaction.
func (r *Repository) InTx(ctx context.Context, fn func(tx *Repository) error) error {
	if _, ok := r.q.(*sql.Tx); ok {
		return fn(r)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Repository{db: r.db, q: tx, dialect: r.dialect}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *Repository) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.q.ExecContext(ctx, r.dialect.Rebind(query), args...)
}

func (r *Repository) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.q.QueryContext(ctx, r.dialect.Rebind(query), args...)
}

func (r *Repository) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return r.q.QueryRowContext(ctx, r.dialect.Rebind(query), args...)
}

func mapWriteErr(err error) error {
	if store.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	}
	return err
}

// ---------- Users & profiles ----------

// CreateUser inserts a user. A taken email yields ErrDuplicateKey.
func (r *Repository) CreateUser(ctx context.Context, u User) error {
	_, err := r.exec(ctx, `INSERT INTO users (email, password, role, name) VALUES (?, ?, ?, ?)`,
		u.Email, u.PasswordHash, string(u.Role), u.Name)
	return mapWriteErr(err)
}

// CreateUserIfAbsent inserts u unless the email is taken and reports
// whether a row was written.
func (r *Repository) CreateUserIfAbsent(ctx context.Context, u User) (bool, error) {
	res, err := r.exec(ctx, `
		INSERT INTO users (email, password, role, name) VALUES (?, ?, ?, ?)
		ON CONFLICT (email) DO NOTHING
	`, u.Email, u.PasswordHash, string(u.Role), u.Name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetUser returns the user with email, or nil when there is none.
func (r *Repository) GetUser(ctx context.Context, email string) (*User, error) {
	var (
		u    User
		role string
	)
	err := r.queryRow(ctx, `SELECT email, password, role, name FROM users WHERE email = ?`, email).
		Scan(&u.Email, &u.PasswordHash, &role, &u.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if u.Role, err = auth.ParseRole(role); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateStudentProfile enrolls a student in a class.
func (r *Repository) CreateStudentProfile(ctx context.Context, email string, classID int64) error {
	_, err := r.exec(ctx, `INSERT INTO student_profiles (email, class_id) VALUES (?, ?)`, email, classID)
	return mapWriteErr(err)
}

// CreateTeacherProfile stores a teacher's department.
func (r *Repository) CreateTeacherProfile(ctx context.Context, email, department string) error {
	_, err := r.exec(ctx, `INSERT INTO teacher_profiles (email, department) VALUES (?, ?)`, email, department)
	return mapWriteErr(err)
}

// StudentClass returns the class a student is enrolled in, or nil.
func (r *Repository) StudentClass(ctx context.Context, email string) (*Class, error) {
	var c Class
	err := r.queryRow(ctx, `
		SELECT c.id, c.name, c.department, c.class_code
		FROM student_profiles sp
		JOIN classes c ON c.id = sp.class_id
		WHERE sp.email = ?
	`, email).Scan(&c.ID, &c.Name, &c.Department, &c.Code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ListStudents returns the students enrolled in a class ordered by name.
func (r *Repository) ListStudents(ctx context.Context, classID int64) ([]User, error) {
	rows, err := r.query(ctx, `
		SELECT u.email, u.name
		FROM student_profiles sp
		JOIN users u ON u.email = sp.email
		WHERE sp.class_id = ?
		ORDER BY u.name, u.email
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []User
	for rows.Next() {
		u := User{Role: auth.RoleStudent}
		if err := rows.Scan(&u.Email, &u.Name); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// GetTeacher returns a teacher with profile and classes, or nil.
func (r *Repository) GetTeacher(ctx context.Context, email string) (*Teacher, error) {
	var t Teacher
	err := r.queryRow(ctx, `
		SELECT u.email, u.name, tp.department
		FROM users u
		JOIN teacher_profiles tp ON tp.email = u.email
		WHERE u.email = ? AND u.role = 'teacher'
	`, email).Scan(&t.Email, &t.Name, &t.Department)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if t.Classes, err = r.TeacherClasses(ctx, email); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTeachers returns every teacher with their assigned classes.
func (r *Repository) ListTeachers(ctx context.Context) ([]Teacher, error) {
	rows, err := r.query(ctx, `
		SELECT u.email, u.name, COALESCE(tp.department, '')
		FROM users u
		LEFT JOIN teacher_profiles tp ON tp.email = u.email
		WHERE u.role = 'teacher'
		ORDER BY u.name, u.email
	`)
	if err != nil {
		return nil, err
	}
	var teachers []Teacher
	index := map[string]int{}
	for rows.Next() {
		var t Teacher
		if err := rows.Scan(&t.Email, &t.Name, &t.Department); err != nil {
			rows.Close()
			return nil, err
		}
		index[t.Email] = len(teachers)
		teachers = append(teachers, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.query(ctx, `
		SELECT tc.email, c.id, c.name, c.department, c.class_code
		FROM teacher_classes tc
		JOIN classes c ON c.id = tc.class_id
		ORDER BY c.name, c.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			email string
			c     Class
		)
		if err := rows.Scan(&email, &c.ID, &c.Name, &c.Department, &c.Code); err != nil {
			return nil, err
		}
		if i, ok := index[email]; ok {
			teachers[i].Classes = append(teachers[i].Classes, c)
		}
	}
	return teachers, rows.Err()
}

// ---------- Classes & schedule ----------

const classColumns = `id, name, department, class_code`

func scanClasses(rows *sql.Rows) ([]Class, error) {
	defer rows.Close()
	var res []Class
	for rows.Next() {
		var c Class
		if err := rows.Scan(&c.ID, &c.Name, &c.Department, &c.Code); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// CreateClass inserts a class. A taken class code yields ErrDuplicateKey.
func (r *Repository) CreateClass(ctx context.Context, c Class) (Class, error) {
	err := r.queryRow(ctx, `
		INSERT INTO classes (name, department, class_code) VALUES (?, ?, ?)
		RETURNING id
	`, c.Name, c.Department, c.Code).Scan(&c.ID)
	if err != nil {
		return Class{}, mapWriteErr(err)
	}
	return c, nil
}

// CreateClassIfAbsent inserts c unless its code is taken. created is false
// when the class already existed.
func (r *Repository) CreateClassIfAbsent(ctx context.Context, c Class) (Class, bool, error) {
	err := r.queryRow(ctx, `
		INSERT INTO classes (name, department, class_code) VALUES (?, ?, ?)
		ON CONFLICT (class_code) DO NOTHING
		RETURNING id
	`, c.Name, c.Department, c.Code).Scan(&c.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, false, nil
		}
		return Class{}, false, err
	}
	return c, true, nil
}

// GetClass returns a class by id, or nil.
func (r *Repository) GetClass(ctx context.Context, id int64) (*Class, error) {
	return r.getClass(ctx, `SELECT `+classColumns+` FROM classes WHERE id = ?`, id)
}

// GetClassByCode returns a class by its join code, or nil.
func (r *Repository) GetClassByCode(ctx context.Context, code string) (*Class, error) {
	return r.getClass(ctx, `SELECT `+classColumns+` FROM classes WHERE class_code = ?`, code)
}

// LockClass locks the class row for the rest of the transaction and
// reports whether it exists.
func (r *Repository) LockClass(ctx context.Context, id int64) (bool, error) {
	c, err := r.getClass(ctx, `SELECT `+classColumns+` FROM classes WHERE id = ?`+r.dialect.LockSuffix, id)
	return c != nil, err
}

func (r *Repository) getClass(ctx context.Context, query string, arg any) (*Class, error) {
	var c Class
	if err := r.queryRow(ctx, query, arg).Scan(&c.ID, &c.Name, &c.Department, &c.Code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ListClasses returns all classes ordered by name.
func (r *Repository) ListClasses(ctx context.Context) ([]Class, error) {
	rows, err := r.query(ctx, `SELECT `+classColumns+` FROM classes ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	return scanClasses(rows)
}

// AddSchedule inserts a weekly slot.
func (r *Repository) AddSchedule(ctx context.Context, e ScheduleEntry) (ScheduleEntry, error) {
	err := r.queryRow(ctx, `
		INSERT INTO class_schedule (class_id, day, start_time, end_time) VALUES (?, ?, ?, ?)
		RETURNING id
	`, e.ClassID, e.Day, e.StartTime, e.EndTime).Scan(&e.ID)
	if err != nil {
		return ScheduleEntry{}, err
	}
	return e, nil
}

// weekdayOrder sorts day names Monday first.
var weekdayOrder = func() string {
	var b strings.Builder
	b.WriteString("CASE day")
	for i, d := range weekdays {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", d, i+1)
	}
	b.WriteString(" ELSE 8 END")
	return b.String()
}()

// ListSchedule returns a class's slots ordered Monday..Sunday, then by start.
func (r *Repository) ListSchedule(ctx context.Context, classID int64) ([]ScheduleEntry, error) {
	rows, err := r.query(ctx, `
		SELECT id, class_id, day, start_time, end_time
		FROM class_schedule
		WHERE class_id = ?
		ORDER BY `+weekdayOrder+`, start_time, id`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []ScheduleEntry
	for rows.Next() {
		var e ScheduleEntry
		if err := rows.Scan(&e.ID, &e.ClassID, &e.Day, &e.StartTime, &e.EndTime); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// ---------- Teacher assignments ----------

// AssignTeacher links a teacher to a class. Existing links are kept as is.
func (r *Repository) AssignTeacher(ctx context.Context, email string, classID int64) error {
	_, err := r.exec(ctx, `
		INSERT INTO teacher_classes (email, class_id) VALUES (?, ?)
		ON CONFLICT (email, class_id) DO NOTHING
	`, email, classID)
	return err
}

// IsAssigned reports whether the teacher teaches the class.
func (r *Repository) IsAssigned(ctx context.Context, email string, classID int64) (bool, error) {
	var n int
	err := r.queryRow(ctx, `SELECT COUNT(*) FROM teacher_classes WHERE email = ? AND class_id = ?`,
		email, classID).Scan(&n)
	return n > 0, err
}

// TeacherClasses returns the classes assigned to a teacher.
func (r *Repository) TeacherClasses(ctx context.Context, email string) ([]Class, error) {
	rows, err := r.query(ctx, `
		SELECT c.id, c.name, c.department, c.class_code
		FROM teacher_classes tc
		JOIN classes c ON c.id = tc.class_id
		WHERE tc.email = ?
		ORDER BY c.name, c.id
	`, email)
	if err != nil {
		return nil, err
	}
	return scanClasses(rows)
}

// ---------- OTP ----------

// DeleteOTPs removes every code of a class.
func (r *Repository) DeleteOTPs(ctx context.Context, classID int64) (int64, error) {
	res, err := r.exec(ctx, `DELETE FROM otp WHERE class_id = ?`, classID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// InsertOTP writes a new code.
func (r *Repository) InsertOTP(ctx context.Context, o OTP) (OTP, error) {
	err := r.queryRow(ctx, `
		INSERT INTO otp (code, class_id, created_time, created_by) VALUES (?, ?, ?, ?)
		RETURNING id
	`, o.Code, o.ClassID, o.CreatedTime, o.CreatedBy).Scan(&o.ID)
	if err != nil {
		return OTP{}, err
	}
	return o, nil
}

// LatestOTP returns the newest code of a class, or nil.
func (r *Repository) LatestOTP(ctx context.Context, classID int64) (*OTP, error) {
	var o OTP
	err := r.queryRow(ctx, `
		SELECT id, code, class_id, created_time, created_by
		FROM otp
		WHERE class_id = ?
		ORDER BY created_time DESC, id DESC
		LIMIT 1
	`, classID).Scan(&o.ID, &o.Code, &o.ClassID, &o.CreatedTime, &o.CreatedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// PurgeOTPsBefore deletes codes created before cutoff (epoch seconds).
func (r *Repository) PurgeOTPsBefore(ctx context.Context, cutoff int64) (int64, error) {
	res, err := r.exec(ctx, `DELETE FROM otp WHERE created_time < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---------- Attendance ----------

// InsertAttendance appends an attendance mark.
func (r *Repository) InsertAttendance(ctx context.Context, rec Record) (Record, error) {
	err := r.queryRow(ctx, `
		INSERT INTO attendance (email, class_id, timestamp) VALUES (?, ?, ?)
		RETURNING id
	`, rec.Email, rec.ClassID, rec.Timestamp).Scan(&rec.ID)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

const recordViewQuery = `
	SELECT a.id, a.email, a.class_id, a.timestamp, u.name, c.name
	FROM attendance a
	JOIN users u ON u.email = a.email
	JOIN classes c ON c.id = a.class_id`

// RecentAttendance returns the newest marks across all classes.
func (r *Repository) RecentAttendance(ctx context.Context, limit int) ([]RecordView, error) {
	rows, err := r.query(ctx, recordViewQuery+`
		ORDER BY a.timestamp DESC, a.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanRecordViews(rows)
}

// StudentAttendance returns a student's newest marks.
func (r *Repository) StudentAttendance(ctx context.Context, email string, limit int) ([]RecordView, error) {
	rows, err := r.query(ctx, recordViewQuery+`
		WHERE a.email = ?
		ORDER BY a.timestamp DESC, a.id DESC
		LIMIT ?`, email, limit)
	if err != nil {
		return nil, err
	}
	return scanRecordViews(rows)
}

// LastMarksSince returns, per student, the latest mark in a class at or
// after since (epoch seconds).
func (r *Repository) LastMarksSince(ctx context.Context, classID, since int64) (map[string]int64, error) {
	rows, err := r.query(ctx, `
		SELECT email, MAX(timestamp)
		FROM attendance
		WHERE class_id = ? AND timestamp >= ?
		GROUP BY email
	`, classID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := map[string]int64{}
	for rows.Next() {
		var (
			email string
			ts    int64
		)
		if err := rows.Scan(&email, &ts); err != nil {
			return nil, err
		}
		res[email] = ts
	}
	return res, rows.Err()
}

func scanRecordViews(rows *sql.Rows) ([]RecordView, error) {
	defer rows.Close()
	var res []RecordView
	for rows.Next() {
		var v RecordView
		if err := rows.Scan(&v.ID, &v.Email, &v.ClassID, &v.Timestamp, &v.StudentName, &v.ClassName); err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}
