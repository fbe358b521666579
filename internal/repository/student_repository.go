package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bursary-api/internal/models"
)

const studentDetailColumns = `s.id, s.admission_number, s.first_name, s.last_name, s.gender, s.birth_date, s.class_id, s.status, s.is_active, s.is_archived, s.graduated_at, s.created_at, s.updated_at,
        c.name AS class_name, c.grade AS class_grade`

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := "FROM students s LEFT JOIN classes c ON c.id = s.class_id"
	var args []interface{}
	conditions := []string{"1=1"}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Grade > 0 {
		conditions = append(conditions, fmt.Sprintf("c.grade = $%d", len(args)+1))
		args = append(args, filter.Grade)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("s.is_active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Archived != nil {
		conditions = append(conditions, fmt.Sprintf("s.is_archived = $%d", len(args)+1))
		args = append(args, *filter.Archived)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.first_name || ' ' || s.last_name) LIKE $%d OR LOWER(s.admission_number) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"last_name":        "s.last_name",
		"admission_number": "s.admission_number",
		"created_at":       "s.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "s.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, studentDetailColumns, base, column, order, size, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student detail by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	query := `SELECT ` + studentDetailColumns + `
        FROM students s
        LEFT JOIN classes c ON c.id = s.class_id
        WHERE s.id = $1`
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListBillable returns every active student with class context, used when opening a term.
func (r *StudentRepository) ListBillable(ctx context.Context) ([]models.StudentDetail, error) {
	query := `SELECT ` + studentDetailColumns + `
        FROM students s
        LEFT JOIN classes c ON c.id = s.class_id
        WHERE s.is_active = TRUE ORDER BY s.admission_number`
	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, fmt.Errorf("list billable students: %w", err)
	}
	return students, nil
}

// ListGraduationCandidates returns in-school students whose class is in the given grade.
func (r *StudentRepository) ListGraduationCandidates(ctx context.Context, grade int) ([]models.StudentDetail, error) {
	query := `SELECT ` + studentDetailColumns + `
        FROM students s
        JOIN classes c ON c.id = s.class_id
        WHERE c.grade = $1 AND s.status IN ($2, $3) ORDER BY s.admission_number`
	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, grade, models.StudentStatusEnrolled, models.StudentStatusActive); err != nil {
		return nil, fmt.Errorf("list graduation candidates: %w", err)
	}
	return students, nil
}

// ListGraduatedDebtors returns graduated students still carrying arrears (not archived).
func (r *StudentRepository) ListGraduatedDebtors(ctx context.Context) ([]models.StudentDetail, error) {
	query := `SELECT ` + studentDetailColumns + `
        FROM students s
        LEFT JOIN classes c ON c.id = s.class_id
        WHERE s.status = $1 AND s.is_archived = FALSE ORDER BY s.admission_number`
	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, models.StudentStatusGraduated); err != nil {
		return nil, fmt.Errorf("list graduated debtors: %w", err)
	}
	return students, nil
}

// ExistsByAdmissionNumber checks if a student with the admission number exists, optionally excluding an ID.
func (r *StudentRepository) ExistsByAdmissionNumber(ctx context.Context, number string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM students WHERE admission_number = $1"
	args := []interface{}{number}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check admission number: %w", err)
	}
	return true, nil
}

// CountByClass returns how many students reference the class.
func (r *StudentRepository) CountByClass(ctx context.Context, classID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM students WHERE class_id = $1`, classID); err != nil {
		return 0, fmt.Errorf("count class students: %w", err)
	}
	return count, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, admission_number, first_name, last_name, gender, birth_date, class_id, status, is_active, is_archived, graduated_at, created_at, updated_at)
        VALUES (:id, :admission_number, :first_name, :last_name, :gender, :birth_date, :class_id, :status, :is_active, :is_archived, :graduated_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies the profile fields of a student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET admission_number = :admission_number, first_name = :first_name, last_name = :last_name, gender = :gender, birth_date = :birth_date, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// UpdateClass assigns the student to a class.
func (r *StudentRepository) UpdateClass(ctx context.Context, id string, classID *string) error {
	const query = `UPDATE students SET class_id = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, classID, time.Now().UTC()); err != nil {
		return fmt.Errorf("update student class: %w", err)
	}
	return nil
}

// UpdateStatus persists lifecycle flags for a student.
func (r *StudentRepository) UpdateStatus(ctx context.Context, student *models.Student) error {
	return updateStudentStatus(ctx, r.db, student)
}

// Graduate persists the graduation outcome and, for debtors, the frozen vault record in one transaction.
func (r *StudentRepository) Graduate(ctx context.Context, student *models.Student, vault *models.ArrearsVault) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin graduation tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = updateStudentStatus(ctx, tx, student); err != nil {
		return err
	}
	if vault != nil {
		if err = insertVault(ctx, tx, vault); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit graduation tx: %w", err)
	}
	return nil
}

func updateStudentStatus(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET status = $2, is_active = $3, is_archived = $4, graduated_at = $5, updated_at = $6 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, student.ID, student.Status, student.IsActive, student.IsArchived, student.GraduatedAt, student.UpdatedAt); err != nil {
		return fmt.Errorf("update student status: %w", err)
	}
	return nil
}
