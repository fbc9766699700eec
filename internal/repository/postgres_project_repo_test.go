package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hitoshi/kotoba/internal/model"
)

func newMockDB(t *testing.T) (*PostgresProjectRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresProjectRepo(db), mock
}

func TestPostgresProjectRepo_FindByProjectID_ReturnsProject(t *testing.T) {
	repo, mock := newMockDB(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"project_id", "name", "auth_id", "api_usage_limit", "seo_addon_enabled", "created_at", "updated_at"}).
		AddRow("project-1", "駅前カフェ", "auth-1", 100, true, now, now)
	mock.ExpectQuery("SELECT project_id, name, auth_id, api_usage_limit, seo_addon_enabled").
		WithArgs("project-1").
		WillReturnRows(rows)

	project, err := repo.FindByProjectID(context.Background(), "project-1")
	if err != nil {
		t.Fatalf("FindByProjectID: %v", err)
	}
	if project == nil {
		t.Fatal("expected non-nil project")
	}
	if project.Name != "駅前カフェ" {
		t.Errorf("name = %q, want 駅前カフェ", project.Name)
	}
	if project.APIUsageLimit != 100 {
		t.Errorf("limit = %d, want 100", project.APIUsageLimit)
	}
	if !project.SeoAddonEnabled {
		t.Error("seoAddonEnabled should be true")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresProjectRepo_FindByProjectID_NotFound_ReturnsNil(t *testing.T) {
	repo, mock := newMockDB(t)

	mock.ExpectQuery("SELECT project_id, name, auth_id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"project_id", "name", "auth_id", "api_usage_limit", "seo_addon_enabled", "created_at", "updated_at"}))

	project, err := repo.FindByProjectID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("FindByProjectID: %v", err)
	}
	if project != nil {
		t.Errorf("project = %+v, want nil", project)
	}
}

func TestPostgresProjectRepo_ListByAuthID_ReturnsAllOwned(t *testing.T) {
	repo, mock := newMockDB(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"project_id", "name", "auth_id", "api_usage_limit", "seo_addon_enabled", "created_at", "updated_at"}).
		AddRow("project-1", "本店", "auth-1", 100, false, now.Add(-time.Hour), now).
		AddRow("project-2", "支店", "auth-1", 50, true, now, now)
	mock.ExpectQuery("SELECT project_id, name, auth_id, api_usage_limit, seo_addon_enabled").
		WithArgs("auth-1").
		WillReturnRows(rows)

	projects, err := repo.ListByAuthID(context.Background(), "auth-1")
	if err != nil {
		t.Fatalf("ListByAuthID: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("projects = %d, want 2", len(projects))
	}
	if projects[0].ProjectID != "project-1" {
		t.Errorf("first project = %q, want project-1 (created_at ASC)", projects[0].ProjectID)
	}
}

func TestPostgresProjectRepo_UpdateLimit_Success(t *testing.T) {
	repo, mock := newMockDB(t)

	mock.ExpectExec("UPDATE projects").
		WithArgs("project-1", 500, true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateLimit(context.Background(), "project-1", 500, true); err != nil {
		t.Fatalf("UpdateLimit: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresProjectRepo_UpdateLimit_UnknownProject_ReturnsNotFound(t *testing.T) {
	repo, mock := newMockDB(t)

	mock.ExpectExec("UPDATE projects").
		WithArgs("missing", 500, false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateLimit(context.Background(), "missing", 500, false)
	if err == nil {
		t.Fatal("expected error for unknown project")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeProjectNotFound {
		t.Errorf("err = %v, want PROJECT_NOT_FOUND", err)
	}
}

func TestPostgresProjectProfileRepo_FindByProjectID_ReturnsFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	repo := NewPostgresProjectProfileRepo(db)

	mock.ExpectQuery("SELECT fields FROM project_profiles").
		WithArgs("project-1").
		WillReturnRows(sqlmock.NewRows([]string{"fields"}).
			AddRow([]byte(`{"businessName":"駅前カフェ","area":"渋谷"}`)))

	fields, err := repo.FindByProjectID(context.Background(), "project-1")
	if err != nil {
		t.Fatalf("FindByProjectID: %v", err)
	}
	if fields["businessName"] != "駅前カフェ" {
		t.Errorf("businessName = %v, want 駅前カフェ", fields["businessName"])
	}
	if fields["area"] != "渋谷" {
		t.Errorf("area = %v, want 渋谷", fields["area"])
	}
}

func TestPostgresProjectProfileRepo_NoProfile_ReturnsEmptyMap(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	repo := NewPostgresProjectProfileRepo(db)

	mock.ExpectQuery("SELECT fields FROM project_profiles").
		WithArgs("project-1").
		WillReturnRows(sqlmock.NewRows([]string{"fields"}))

	fields, err := repo.FindByProjectID(context.Background(), "project-1")
	if err != nil {
		t.Fatalf("FindByProjectID: %v", err)
	}
	if fields == nil {
		t.Fatal("expected empty map, got nil")
	}
	if len(fields) != 0 {
		t.Errorf("fields = %v, want empty", fields)
	}
}
