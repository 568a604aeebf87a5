package dataservice_test

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-health/core/pkg/dataservice"
	"github.com/aegis-health/core/pkg/entity"
)

func TestPatientRepositoryGetRequiresTenant(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := dataservice.New(db, nil)
	_, err = svc.Patients.Get(context.Background(), "", "Patient/1")
	require.Error(t, err)
}

func TestPatientRepositoryGetScopesOnTenant(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	namesJSON, _ := json.Marshal([]entity.Name{{Given: []string{"A"}, Family: "B"}})
	rows := sqlmock.NewRows([]string{"id", "mrn", "names", "birth_date", "gender", "deceased", "address", "contact"}).
		AddRow("Patient/1", "MRN1", namesJSON, "1970-01-01", "male", false, []byte("null"), []byte("null"))

	mock.ExpectQuery(regexp.QuoteMeta("FROM patients WHERE id = $1 AND tenant_id = $2")).
		WithArgs("Patient/1", "tenant-1").
		WillReturnRows(rows)

	svc := dataservice.New(db, nil)
	p, err := svc.Patients.Get(context.Background(), "tenant-1", "Patient/1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", p.TenantID)
	assert.Equal(t, "MRN1", p.MRN)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepositoryUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO patients")).
		WithArgs("Patient/1", "tenant-1", "MRN1", sqlmock.AnyArg(), "1970-01-01", "male", false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	svc := dataservice.New(db, nil)
	err = svc.Patients.Upsert(context.Background(), entity.Patient{
		ID: "Patient/1", TenantID: "tenant-1", MRN: "MRN1", BirthDate: "1970-01-01", Gender: "male",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type stubGraph struct {
	lastDepth int
}

func (s *stubGraph) Traverse(ctx context.Context, tenantID, rootLabel, rootID string, maxDepth int) (dataservice.Network, error) {
	s.lastDepth = maxDepth
	return dataservice.Network{}, nil
}

func TestGetPatientNetworkClampsDepth(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	g := &stubGraph{}
	svc := dataservice.New(db, g)

	_, err = svc.GetPatientNetwork(context.Background(), "tenant-1", "Patient/1", 999)
	require.NoError(t, err)
	assert.Equal(t, 5, g.lastDepth, "expected an over-large requested depth clamped to the configured ceiling")
}

func TestGetPatientNetworkRequiresTenant(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := dataservice.New(db, &stubGraph{})
	_, err = svc.GetPatientNetwork(context.Background(), "", "Patient/1", 2)
	require.Error(t, err)
}

func TestGetPatientNetworkWithoutGraphDriverErrors(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := dataservice.New(db, nil)
	_, err = svc.GetPatientNetwork(context.Background(), "tenant-1", "Patient/1", 2)
	require.Error(t, err)
}

func TestGetVitalTrendsRaisesCompositeDeterioration(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cols := []string{"id", "patient_id", "code", "value_kind", "value_number",
		"value_text", "value_bool", "unit", "ref_range", "effective_ts", "category", "encounter_id"}

	spo2Rows := sqlmock.NewRows(cols).
		AddRow("Observation/1", "Patient/1", "spo2", "numeric", 98.0, "", false, "%", "", time.Now().Add(-2*time.Hour), "vital-signs", nil).
		AddRow("Observation/2", "Patient/1", "spo2", "numeric", 91.0, "", false, "%", "", time.Now(), "vital-signs", nil)
	mock.ExpectQuery(regexp.QuoteMeta("o.code = $3")).WithArgs("Patient/1", "tenant-1", "spo2", sqlmock.AnyArg()).WillReturnRows(spo2Rows)

	hrRows := sqlmock.NewRows(cols).
		AddRow("Observation/3", "Patient/1", "heart_rate", "numeric", 72.0, "", false, "bpm", "", time.Now().Add(-2*time.Hour), "vital-signs", nil).
		AddRow("Observation/4", "Patient/1", "heart_rate", "numeric", 110.0, "", false, "bpm", "", time.Now(), "vital-signs", nil)
	mock.ExpectQuery(regexp.QuoteMeta("o.code = $3")).WithArgs("Patient/1", "tenant-1", "heart_rate", sqlmock.AnyArg()).WillReturnRows(hrRows)

	rrRows := sqlmock.NewRows(cols)
	mock.ExpectQuery(regexp.QuoteMeta("o.code = $3")).WithArgs("Patient/1", "tenant-1", "respiratory_rate", sqlmock.AnyArg()).WillReturnRows(rrRows)

	svc := dataservice.New(db, nil)
	trends, err := svc.GetVitalTrends(context.Background(), "tenant-1", "Patient/1")
	require.NoError(t, err)
	require.NotNil(t, trends.Deterioration, "expected spo2-down + heart_rate-up to raise a composite deterioration alert")
}

func TestGetVitalTrendsRequiresTenant(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := dataservice.New(db, nil)
	_, err = svc.GetVitalTrends(context.Background(), "", "Patient/1")
	require.Error(t, err)
}
