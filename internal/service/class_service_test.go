package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bursary-api/internal/models"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
)

type mockClassRepo struct {
	classes map[string]*models.Class
	deleted []string
}

func (m *mockClassRepo) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error) {
	var out []models.Class
	for _, class := range m.classes {
		if filter.Grade == 0 || class.Grade == filter.Grade {
			out = append(out, *class)
		}
	}
	return out, len(out), nil
}

func (m *mockClassRepo) FindByID(ctx context.Context, id string) (*models.Class, error) {
	class, ok := m.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *class
	return &copied, nil
}

func (m *mockClassRepo) ExistsByName(ctx context.Context, name string, excludeID string) (bool, error) {
	for id, class := range m.classes {
		if class.Name == name && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockClassRepo) Create(ctx context.Context, class *models.Class) error {
	class.ID = "class-" + class.Name
	copied := *class
	m.classes[class.ID] = &copied
	return nil
}

func (m *mockClassRepo) Update(ctx context.Context, class *models.Class) error {
	copied := *class
	m.classes[class.ID] = &copied
	return nil
}

func (m *mockClassRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.classes, id)
	return nil
}

type stubClassCounter map[string]int

func (s stubClassCounter) CountByClass(ctx context.Context, classID string) (int, error) {
	return s[classID], nil
}

func TestClassServiceCreate(t *testing.T) {
	repo := &mockClassRepo{classes: map[string]*models.Class{"c1": {ID: "c1", Name: "7A", Grade: 7}}}
	svc := NewClassService(repo, stubClassCounter{}, nil, nil)

	class, err := svc.Create(context.Background(), CreateClassRequest{Name: "6B", Grade: 6, Stream: "B"})
	require.NoError(t, err)
	assert.Equal(t, "class-6B", class.ID)

	_, err = svc.Create(context.Background(), CreateClassRequest{Name: "7A", Grade: 7})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), CreateClassRequest{Name: "8A", Grade: 8})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestClassServiceUpdate(t *testing.T) {
	repo := &mockClassRepo{classes: map[string]*models.Class{"c1": {ID: "c1", Name: "6A", Grade: 6}}}
	svc := NewClassService(repo, stubClassCounter{}, nil, nil)

	class, err := svc.Update(context.Background(), "c1", UpdateClassRequest{Name: "7A", Grade: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, class.Grade)
	assert.Equal(t, "7A", repo.classes["c1"].Name)
}

func TestClassServiceDeleteWithStudents(t *testing.T) {
	repo := &mockClassRepo{classes: map[string]*models.Class{
		"c1": {ID: "c1", Name: "6A", Grade: 6},
		"c2": {ID: "c2", Name: "6B", Grade: 6},
	}}
	svc := NewClassService(repo, stubClassCounter{"c1": 2}, nil, nil)

	err := svc.Delete(context.Background(), "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Delete(context.Background(), "c2"))
	assert.Equal(t, []string{"c2"}, repo.deleted)
}
