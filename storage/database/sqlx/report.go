package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	watchersvc "github.com/tqwops/fieldops/services/watcher"
)

// reportRepository reads the externally-fed daily report table; the schema is
// owned by the integration job, not by this app's migrations.
type reportRepository struct {
	db *sqlx.DB
}

var _ watchersvc.Source = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(db *sqlx.DB) *reportRepository {
	return &reportRepository{db: db}
}

func (repo reportRepository) LatestIntegration(ctx context.Context) (null.String, error) {
	var last null.String
	err := repo.db.GetContext(ctx, &last,
		"SELECT MAX(fecha_integracion) AS last_integration FROM tb_toa_reporte_diario")
	if err != nil {
		return null.String{}, errors.Wrap(err, "querying last integration")
	}
	return last, nil
}
