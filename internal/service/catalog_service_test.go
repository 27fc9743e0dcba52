package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"lotflow/internal/apierror"
	"lotflow/internal/dto"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMarqueTrimsAndRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.catSvc.CreateMarque(ctx, dto.CreateMarqueRequest{Name: "  Lenovo "})
	require.NoError(t, err)
	assert.Equal(t, "Lenovo", m.Name)

	_, err = f.catSvc.CreateMarque(ctx, dto.CreateMarqueRequest{Name: "LENOVO"})
	assert.ErrorIs(t, err, apierror.ErrConflict)

	_, err = f.catSvc.CreateMarque(ctx, dto.CreateMarqueRequest{Name: "   "})
	assert.ErrorIs(t, err, apierror.ErrValidation)
}

func TestCreateModele(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dell, err := f.catSvc.CreateMarque(ctx, dto.CreateMarqueRequest{Name: "Dell"})
	require.NoError(t, err)

	md, err := f.catSvc.CreateModele(ctx, dell.ID, dto.CreateModeleRequest{Name: "OptiPlex 7050"})
	require.NoError(t, err)
	assert.Equal(t, dell.ID, md.MarqueID)

	_, err = f.catSvc.CreateModele(ctx, dell.ID, dto.CreateModeleRequest{Name: "OptiPlex 7050"})
	assert.ErrorIs(t, err, apierror.ErrConflict)

	_, err = f.catSvc.CreateModele(ctx, uuid.New(), dto.CreateModeleRequest{Name: "X"})
	assert.ErrorIs(t, err, apierror.ErrNotFound)

	list, err := f.catSvc.ListModeles(ctx, dell.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = f.catSvc.ListModeles(ctx, uuid.New())
	assert.ErrorIs(t, err, apierror.ErrNotFound)
}

func TestSeedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
marques:
  - name: Dell
    modeles: [Latitude 5490, OptiPlex 7050]
  - name: HP
    modeles:
      - EliteBook 840
  - name: "  "
`), 0o644))

	require.NoError(t, f.catSvc.Seed(ctx, path))
	require.NoError(t, f.catSvc.Seed(ctx, path))

	all, err := f.catSvc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Dell", all[0].Name)
	assert.Len(t, all[0].Modeles, 2)
	assert.Equal(t, "HP", all[1].Name)
	assert.Len(t, all[1].Modeles, 1)

	plain, err := f.catSvc.ListMarques(ctx)
	require.NoError(t, err)
	assert.Nil(t, plain[0].Modeles)
}

func TestSeedMissingFile(t *testing.T) {
	f := newFixture(t)
	assert.Error(t, f.catSvc.Seed(context.Background(), filepath.Join(t.TempDir(), "nope.yaml")))
}
