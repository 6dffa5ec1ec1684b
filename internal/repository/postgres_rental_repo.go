package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/hitoshi/estately/internal/model"
)

// PostgresRentalApplicationRepo はPostgreSQLを使用した賃貸申込リポジトリ。
type PostgresRentalApplicationRepo struct {
	db *sql.DB
}

// NewPostgresRentalApplicationRepo はPostgresRentalApplicationRepoを生成する。
func NewPostgresRentalApplicationRepo(db *sql.DB) *PostgresRentalApplicationRepo {
	return &PostgresRentalApplicationRepo{db: db}
}

// FindByID は指定IDの申込を取得する。論理削除済みまたは未検出の場合はnilを返す。
func (r *PostgresRentalApplicationRepo) FindByID(ctx context.Context, q Queryer, id string) (*model.RentalApplication, error) {
	app := &model.RentalApplication{}
	var submittedAt, decidedAt, deletedAt sql.NullTime
	var decidedByUserID sql.NullString

	err := q.QueryRowContext(ctx,
		`SELECT id, property_id, applicant_user_id, status, submitted_at, decided_at,
		        decided_by_user_id, deleted_at, created_at, updated_at
		 FROM rental_applications WHERE id = $1 AND deleted_at IS NULL`,
		id,
	).Scan(
		&app.ID, &app.PropertyID, &app.ApplicantUserID, &app.Status,
		&submittedAt, &decidedAt, &decidedByUserID, &deletedAt,
		&app.CreatedAt, &app.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find rental application: %w", err)
	}

	if submittedAt.Valid {
		app.SubmittedAt = &submittedAt.Time
	}
	if decidedAt.Valid {
		app.DecidedAt = &decidedAt.Time
	}
	if decidedByUserID.Valid {
		app.DecidedByUserID = &decidedByUserID.String
	}
	if deletedAt.Valid {
		app.DeletedAt = &deletedAt.Time
	}

	return app, nil
}

// Create は申込を作成し、採番されたIDとcreated_atをappに書き戻す。
func (r *PostgresRentalApplicationRepo) Create(ctx context.Context, q Queryer, app *model.RentalApplication) error {
	if app.ID == "" {
		app.ID = uuid.New().String()
	}

	err := q.QueryRowContext(ctx,
		`INSERT INTO rental_applications (id, property_id, applicant_user_id, status, submitted_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		app.ID, app.PropertyID, app.ApplicantUserID, app.Status, app.SubmittedAt,
	).Scan(&app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rental application: %w", err)
	}

	return nil
}

// CreateSnapshot は提出時点のペイロードを保存する。
func (r *PostgresRentalApplicationRepo) CreateSnapshot(ctx context.Context, q Queryer, snapshot *model.RentalApplicationSnapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.New().String()
	}
	payload := snapshot.SubmittedPayload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO rental_application_snapshots (id, rental_application_id, submitted_payload_json)
		 VALUES ($1, $2, $3)`,
		snapshot.ID, snapshot.RentalApplicationID, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rental application snapshot: %w", err)
	}

	return nil
}

// CreateDocuments は添付ドキュメントをまとめて保存する。
func (r *PostgresRentalApplicationRepo) CreateDocuments(ctx context.Context, q Queryer, documents []model.RentalApplicationDocument) error {
	for i := range documents {
		doc := &documents[i]
		if doc.ID == "" {
			doc.ID = uuid.New().String()
		}
		metadata := doc.Metadata
		if len(metadata) == 0 {
			metadata = []byte("{}")
		}

		_, err := q.ExecContext(ctx,
			`INSERT INTO rental_application_documents (id, rental_application_id, file_url, metadata_json)
			 VALUES ($1, $2, $3, $4)`,
			doc.ID, doc.RentalApplicationID, doc.FileURL, metadata,
		)
		if err != nil {
			return fmt.Errorf("failed to insert rental application document: %w", err)
		}
	}

	return nil
}

// UpdateDecision は申込の状態と決定フィールドを更新する。
func (r *PostgresRentalApplicationRepo) UpdateDecision(ctx context.Context, q Queryer, app *model.RentalApplication) error {
	_, err := q.ExecContext(ctx,
		`UPDATE rental_applications
		 SET status = $2, decided_at = $3, decided_by_user_id = $4, updated_at = now()
		 WHERE id = $1`,
		app.ID, app.Status, app.DecidedAt, app.DecidedByUserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update rental application decision: %w", err)
	}

	return nil
}

// List はフィルタ条件に合致する申込をcreated_at降順・ID降順の
// カーソルページネーションで返す。limit+1件取得しhasMoreを判定する。
func (r *PostgresRentalApplicationRepo) List(ctx context.Context, opts ListRentalApplicationsOptions) ([]*model.RentalApplication, bool, error) {
	var conditions []string
	var args []any

	conditions = append(conditions, "deleted_at IS NULL")

	addCondition := func(expr string, value any) {
		args = append(args, value)
		conditions = append(conditions, strings.Replace(expr, "?", "$"+strconv.Itoa(len(args)), 1))
	}

	if opts.PropertyID != "" {
		addCondition("property_id = ?", opts.PropertyID)
	}
	if opts.ApplicantUserID != "" {
		addCondition("applicant_user_id = ?", opts.ApplicantUserID)
	}
	if opts.Status != "" {
		addCondition("status = ?", opts.Status)
	}
	if opts.Cursor != "" {
		addCondition("id < ?", opts.Cursor)
	}

	args = append(args, opts.Limit+1)
	query := `SELECT id, property_id, applicant_user_id, status, submitted_at, decided_at,
	                 decided_by_user_id, deleted_at, created_at, updated_at
	          FROM rental_applications
	          WHERE ` + strings.Join(conditions, " AND ") + `
	          ORDER BY created_at DESC, id DESC
	          LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list rental applications: %w", err)
	}
	defer rows.Close()

	var apps []*model.RentalApplication
	for rows.Next() {
		app := &model.RentalApplication{}
		var submittedAt, decidedAt, deletedAt sql.NullTime
		var decidedByUserID sql.NullString

		if err := rows.Scan(
			&app.ID, &app.PropertyID, &app.ApplicantUserID, &app.Status,
			&submittedAt, &decidedAt, &decidedByUserID, &deletedAt,
			&app.CreatedAt, &app.UpdatedAt,
		); err != nil {
			return nil, false, fmt.Errorf("failed to scan rental application: %w", err)
		}

		if submittedAt.Valid {
			app.SubmittedAt = &submittedAt.Time
		}
		if decidedAt.Valid {
			app.DecidedAt = &decidedAt.Time
		}
		if decidedByUserID.Valid {
			app.DecidedByUserID = &decidedByUserID.String
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("failed to iterate rental applications: %w", err)
	}

	hasMore := len(apps) > opts.Limit
	if hasMore {
		apps = apps[:opts.Limit]
	}

	return apps, hasMore, nil
}

// compile-time interface check
var _ RentalApplicationRepository = (*PostgresRentalApplicationRepo)(nil)
